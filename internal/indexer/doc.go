// Package indexer ingests crawled pages into the chunk store, the vector
// index and the corpus statistics.
//
// # Basic Usage
//
//	docs, err := indexer.LoadCrawlFile("crawl.json")
//	if err != nil {
//	    return err
//	}
//
//	idx := indexer.New(store, emb, stats, indexer.DefaultConfig(),
//	    indexer.WithExtractor(extractor),
//	    indexer.WithCacheInvalidator(searcher))
//
//	report, err := idx.IndexDocuments(ctx, docs, chunker.New(200, 40), indexer.IndexOptions{
//	    Cursor: "crawl",
//	    Resume: true,
//	})
//
// # Pipeline
//
// Pages are sorted by URL and processed in batches. Within a batch every
// chunk is prepared concurrently by a bounded worker pool:
//
//  1. Wait for the shared token bucket
//  2. Extract metadata (cached by content fingerprint)
//  3. Generate the embedding
//
// The prepared chunks, their embeddings and the advanced cursor are then
// written in one transaction. Only after the commit are vectors mirrored to
// the optional external index, the corpus statistics updated and the search
// response caches purged, so a failed batch leaves no partial state behind.
//
// A chunk whose metadata extraction fails is stored without metadata; it is
// still searchable but fails category and level filters. A chunk whose
// embedding fails is skipped and reported in Statistics.ErrorMessages.
//
// # Resuming
//
// With IndexOptions.Cursor set, the URL of the last page of every committed
// batch is saved. A later run with Resume skips pages up to and including
// that URL.
//
// # Concurrency
//
// IndexLock makes concurrent runs fail fast with ErrIndexingInProgress.
// Between batches the indexer sleeps for Config.BatchDelay to spread load on
// the LLM and embedding providers.
package indexer
