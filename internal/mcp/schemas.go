package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// filtersSchema describes the optional metadata filters shared by the search tools
func filtersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Optional filters to narrow search",
		"properties": map[string]interface{}{
			"categories": map[string]interface{}{
				"type":        "array",
				"description": "Keep chunks whose primary category is one of these",
				"items": map[string]interface{}{
					"type": "string",
				},
			},
			"min_technical_level": map[string]interface{}{
				"type":        "integer",
				"description": "Minimum technical level (1-5)",
				"minimum":     1,
				"maximum":     5,
			},
			"max_technical_level": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum technical level (1-5)",
				"minimum":     1,
				"maximum":     5,
			},
			"sources": map[string]interface{}{
				"type":        "array",
				"description": "Source URL prefixes",
				"items": map[string]interface{}{
					"type": "string",
				},
			},
			"created_after": map[string]interface{}{
				"type":        "string",
				"description": "RFC 3339 timestamp",
			},
			"created_before": map[string]interface{}{
				"type":        "string",
				"description": "RFC 3339 timestamp",
			},
		},
	}
}

// hybridSearchTool returns the tool definition for hybrid_search
func hybridSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "hybrid_search",
		Description: "Rank knowledge-base chunks by a blend of vector similarity and BM25",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"hybrid_ratio": map[string]interface{}{
					"type":        "number",
					"description": "Vector weight: 1 is vector only, 0 is BM25 only",
					"default":     0.5,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"filters": filtersSchema(),
			},
			Required: []string{"query"},
		},
	}
}

// routeQueryTool returns the tool definition for route_query
func routeQueryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "route_query",
		Description: "Answer a question through analysis, optional expansion, hybrid search and optional reranking",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The user's question",
				},
				"use_query_expansion": map[string]interface{}{
					"type":        "boolean",
					"description": "Search paraphrases of the query as well",
					"default":     false,
				},
				"use_reranking": map[string]interface{}{
					"type":        "boolean",
					"description": "Reorder the top candidates with the reranker",
					"default":     false,
				},
				"debug": map[string]interface{}{
					"type":        "boolean",
					"description": "Include request id, expanded queries and stage trace",
					"default":     false,
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return",
					"minimum":     1,
					"maximum":     100,
				},
				"hybrid_ratio": map[string]interface{}{
					"type":        "number",
					"description": "Vector weight: 1 is vector only, 0 is BM25 only",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"filters": filtersSchema(),
			},
			Required: []string{"query"},
		},
	}
}

// extractMetadataTool returns the tool definition for extract_metadata
func extractMetadataTool() mcp.Tool {
	return mcp.Tool{
		Name:        "extract_metadata",
		Description: "Extract category, technical level, summary, keywords and entities from text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Document text",
				},
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Caller's document id, used in logs and errors",
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Override the configured model",
				},
				"use_caching": map[string]interface{}{
					"type":        "boolean",
					"description": "Reuse a live extraction for identical text",
					"default":     true,
				},
			},
			Required: []string{"text"},
		},
	}
}

// invalidateMetadataTool returns the tool definition for invalidate_metadata
func invalidateMetadataTool() mcp.Tool {
	return mcp.Tool{
		Name:        "invalidate_metadata",
		Description: "Forget the cached extraction for text so the next extract_metadata call re-runs the model",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Document text whose extraction should be dropped",
				},
			},
			Required: []string{"text"},
		},
	}
}

// ingestCrawlTool returns the tool definition for ingest_crawl
func ingestCrawlTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_crawl",
		Description: "Index the successful pages of a crawler JSON output file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the crawl output (.json)",
				},
				"resume": map[string]interface{}{
					"type":        "boolean",
					"description": "Skip pages committed by an earlier run",
					"default":     true,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index size, cache state and collaborator configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
