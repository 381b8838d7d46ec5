// Package engine assembles the retrieval components from configuration and
// exposes the three public entry points shared by the MCP server, the HTTP
// API and the CLI:
//
//	e, err := engine.Open(ctx, cfg, engine.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
//	results, err := e.PerformHybridSearch(ctx, "okta sso", 5, 0.5, nil)
//	answer, err := e.RouteQuery(ctx, "how do I enable sso?", router.Options{UseReranking: true})
//	meta, err := e.ExtractMetadata(ctx, text, "doc-1", metadata.Options{UseCaching: true})
//
// Without an LLM API key the analyzer, expander and reranker fall back to
// their rule implementations, chunks are indexed without metadata and
// ExtractMetadata returns ErrExtractionUnavailable.
package engine
