// Package mcp implements the Model Context Protocol (MCP) server for the
// retrieval engine.
//
// The MCP server exposes six tools to assistant clients:
//   - hybrid_search: Rank chunks by blended vector and BM25 relevance
//   - route_query: Answer a question through the staged query pipeline
//   - extract_metadata: Derive structured metadata from text
//   - invalidate_metadata: Drop a cached extraction
//   - ingest_crawl: Index a crawler output file
//   - get_status: Report index and cache statistics
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	ragengine serve
//
// # Tool: hybrid_search
//
//	Request:
//	{
//	  "name": "hybrid_search",
//	  "arguments": {
//	    "query": "okta sso",
//	    "top_k": 5,
//	    "hybrid_ratio": 0.5,
//	    "filters": {
//	      "categories": ["security"],
//	      "min_technical_level": 2
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "query": "okta sso",
//	  "total": 1,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "id": "3f2a9c01d4e5b677-0000",
//	      "url": "https://acme.test/security",
//	      "score": 1,
//	      "vector_score": 1,
//	      "bm25_score": 1,
//	      "category": "security"
//	    }
//	  ]
//	}
//
// # Tool: route_query
//
//	Request:
//	{
//	  "name": "route_query",
//	  "arguments": {
//	    "query": "how do I enable sso?",
//	    "use_query_expansion": true,
//	    "use_reranking": true,
//	    "debug": false
//	  }
//	}
//
// The response carries query_analysis, results, processing_time (milliseconds
// per stage; expansion and reranking are omitted when they did not run) and
// degraded.
//
// # Error Handling
//
// Failures are returned as JSON-RPC errors:
//
//	{
//	  "error": {
//	    "code": -32005,
//	    "message": "query routing failed",
//	    "data": {
//	      "stage": "search",
//	      "error": "search stage failed: stage timeout"
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments, invalid query)
//   - -32603: Internal error
//   - -32001: Crawl file not found
//   - -32002: Indexing in progress
//   - -32003: Collaborator unavailable or rate limited
//   - -32004: Empty query
//   - -32005: Deadline exceeded
//
// # Logging
//
// stdout is reserved for protocol messages; the server logs through zap to
// stderr.
package mcp
