// Package types provides shared type definitions for the retrieval engine.
//
// This package defines domain types used across components: chunks and their
// extracted metadata, retrieval filters, ranked search results, query analysis,
// routed results and the error taxonomy.
//
// # Core Types
//
// Chunk is a bounded slice of a crawled page. Metadata is attached once an
// LLM has described it:
//
//	chunk := &types.Chunk{
//	    ID:        "https://example.com/pricing#0",
//	    SourceURL: "https://example.com/pricing",
//	    Text:      "Enterprise plans include SSO and audit logs...",
//	}
//
// SearchResult carries the combined score plus optional component scores.
// A component is present only when its retrieval family contributed:
//
//	if v, ok := result.VectorScore(); ok {
//	    fmt.Printf("vector %.3f\n", v)
//	}
//
// # Errors
//
// Sentinel errors are wrapped with %w throughout, so callers use errors.Is:
//
//	var stageErr *types.StageError
//	if errors.As(err, &stageErr) && stageErr.Stage == types.StageSearch {
//	    // mandatory stage failed
//	}
package types
