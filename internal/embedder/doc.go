// Package embedder generates vector embeddings for chunks and queries.
//
// Two providers are available. OpenAIProvider calls the OpenAI embeddings API
// through go-openai, retrying rate limits and outages with exponential
// backoff. LocalProvider hashes terms into a fixed-size signed vector so the
// engine runs offline; texts sharing vocabulary score as similar.
//
// # Basic Usage
//
//	emb, err := embedder.NewFromConfig(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "Does the enterprise plan include SSO?",
//	})
//
// # Batch Processing
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
// At most MaxBatchSize texts are accepted per call. Texts already in the
// cache are not sent to the API.
//
// # Caching
//
// Vectors are cached in an LRU keyed by the content fingerprint and model, the
// same fingerprint that keys extracted metadata. A request naming another
// model gets its own entry. Cached vectors are copied on the way in and out,
// so callers may mutate results.
//
// All vectors are unit length, so cosine similarity equals the dot product.
package embedder
