package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/engine"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/indexer"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/metadata"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/router"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeFileNotFound       = -32001 // Crawl file missing or unreadable
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeUnavailable        = -32003 // LLM, embedding or vector collaborator unavailable
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeTimeout            = -32005 // Request or stage deadline exceeded
)

const maxTopK = 100

// handleHybridSearch handles the hybrid_search tool invocation
func (s *Server) handleHybridSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}

	topK := getIntDefault(args, "top_k", 10)
	if topK < 1 || topK > maxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 100", map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	ratio := getFloatDefault(args, "hybrid_ratio", 0.5)
	if ratio < 0 || ratio > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "hybrid_ratio must be between 0 and 1", map[string]interface{}{
			"param": "hybrid_ratio",
			"value": ratio,
		})
	}

	filters, err := parseFilters(args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := s.engine.PerformHybridSearch(ctx, query, topK, ratio, filters)
	if err != nil {
		return nil, toMCPError("search failed", err)
	}

	response := map[string]interface{}{
		"query":       query,
		"results":     formatResults(results),
		"total":       len(results),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRouteQuery handles the route_query tool invocation
func (s *Server) handleRouteQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}

	opts := router.Options{
		UseQueryExpansion: getBoolDefault(args, "use_query_expansion", false),
		UseReranking:      getBoolDefault(args, "use_reranking", false),
		Debug:             getBoolDefault(args, "debug", false),
		TopK:              getIntDefault(args, "top_k", 0),
	}
	if opts.TopK < 0 || opts.TopK > maxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 100", map[string]interface{}{
			"param": "top_k",
			"value": opts.TopK,
		})
	}
	if _, set := args["hybrid_ratio"]; set {
		ratio := getFloatDefault(args, "hybrid_ratio", -1)
		if ratio < 0 || ratio > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "hybrid_ratio must be between 0 and 1", map[string]interface{}{
				"param": "hybrid_ratio",
				"value": args["hybrid_ratio"],
			})
		}
		opts.HybridRatio = &ratio
	}
	if opts.Filters, err = parseFilters(args); err != nil {
		return nil, err
	}

	result, err := s.engine.RouteQuery(ctx, query, opts)
	if err != nil {
		return nil, toMCPError("query routing failed", err)
	}

	response := map[string]interface{}{
		"query_analysis":  result.QueryAnalysis,
		"results":         formatResults(result.Results),
		"processing_time": result.ProcessingTime,
		"degraded":        result.Degraded,
	}
	if result.Debug != nil {
		response["debug"] = result.Debug
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleExtractMetadata handles the extract_metadata tool invocation
func (s *Server) handleExtractMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	id := getStringDefault(args, "id", "")
	opts := metadata.Options{
		Model:      getStringDefault(args, "model", ""),
		UseCaching: getBoolDefault(args, "use_caching", true),
	}

	meta, err := s.engine.ExtractMetadata(ctx, text, id, opts)
	if err != nil {
		return nil, toMCPError("metadata extraction failed", err)
	}

	response := map[string]interface{}{
		"id":       id,
		"metadata": meta,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleInvalidateMetadata handles the invalidate_metadata tool invocation
func (s *Server) handleInvalidateMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	if err := s.engine.InvalidateMetadata(ctx, text); err != nil {
		return nil, toMCPError("metadata invalidation failed", err)
	}

	response := map[string]interface{}{
		"fingerprint": types.Fingerprint(text),
		"invalidated": true,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestCrawl handles the ingest_crawl tool invocation
func (s *Server) handleIngestCrawl(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validateCrawlPath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrPathNotReadable) {
			code = ErrorCodeFileNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	opts := indexer.IndexOptions{
		Cursor: engine.DefaultCursor,
		Resume: getBoolDefault(args, "resume", true),
	}

	stats, err := s.engine.IngestFile(ctx, path, opts)
	if err != nil {
		return nil, toMCPError("indexing failed", err)
	}

	response := map[string]interface{}{
		"indexed":           true,
		"pages_processed":   stats.PagesProcessed,
		"pages_skipped":     stats.PagesSkipped,
		"chunks_indexed":    stats.ChunksIndexed,
		"chunks_failed":     stats.ChunksFailed,
		"metadata_failures": stats.MetadataFailures,
		"tokens_estimated":  stats.TokensEstimated,
		"corpus_documents":  stats.CorpusDocuments,
		"duration_ms":       stats.Duration.Milliseconds(),
	}
	if stats.ResumedAfter != "" {
		response["resumed_after"] = stats.ResumedAfter
	}
	if stats.CursorHeldAt != "" {
		response["cursor_held_at"] = stats.CursorHeldAt
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"chunks_count":          status.Storage.ChunksCount,
			"embeddings_count":      status.Storage.EmbeddingsCount,
			"corpus_documents":      status.CorpusDocuments,
			"average_chunk_length":  fmt.Sprintf("%.1f", status.AverageChunkLength),
			"categories":            status.Storage.Categories,
			"index_size_mb":         fmt.Sprintf("%.2f", status.Storage.IndexSizeMB),
			"vector_backend":        status.VectorBackend,
			"vector_count":          status.VectorCount,
			"indexing_in_progress":  status.IndexingInProgress,
			"schema_version":        status.Storage.SchemaVersion,
			"embedding_provider":    status.EmbeddingProvider,
			"embedding_model":       status.EmbeddingModel,
			"llm_configured":        status.LLMConfigured,
			"search_cache_entries":  status.SearchCacheEntries,
			"metadata_hot_entries":  status.MetadataHotEntries,
			"metadata_cache_stored": status.Storage.CacheEntries,
			"metadata_cache_stale":  status.Storage.ExpiredCacheEntries,
			"sweep_runs":            status.SweepRuns,
			"sweep_removed":         status.SweepRemoved,
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Storage.Health.DatabaseAccessible,
			"embeddings_available": status.Storage.Health.EmbeddingsAvailable,
			"metadata_available":   status.Storage.Health.MetadataAvailable,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toMCPError maps an engine error onto a protocol error code
func toMCPError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrInvalidQuery):
		code = ErrorCodeInvalidParams
	case errors.Is(err, indexer.ErrIndexingInProgress):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, types.ErrStageTimeout), errors.Is(err, context.DeadlineExceeded):
		code = ErrorCodeTimeout
	case errors.Is(err, types.ErrCollaboratorUnavailable), errors.Is(err, types.ErrRateLimited):
		code = ErrorCodeUnavailable
	}

	data := map[string]interface{}{"error": err.Error()}
	var stageErr *types.StageError
	if errors.As(err, &stageErr) {
		data["stage"] = stageErr.Stage
	}
	return newMCPError(code, message, data)
}

func requireQuery(args map[string]interface{}) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	return query, nil
}

// parseFilters reads the optional filters object
func parseFilters(args map[string]interface{}) (*types.Filters, error) {
	raw, ok := args["filters"].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil, nil
	}

	filters := &types.Filters{
		Categories:        getStringSlice(raw, "categories"),
		Sources:           getStringSlice(raw, "sources"),
		MinTechnicalLevel: getIntDefault(raw, "min_technical_level", 0),
		MaxTechnicalLevel: getIntDefault(raw, "max_technical_level", 0),
	}
	for key, dst := range map[string]**time.Time{
		"created_after":  &filters.CreatedAfter,
		"created_before": &filters.CreatedBefore,
	} {
		value := getStringDefault(raw, key, "")
		if value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid filter timestamp", map[string]interface{}{
				"param":  "filters." + key,
				"reason": err.Error(),
			})
		}
		*dst = &t
	}

	if err := filters.Validate(); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid filters", map[string]interface{}{
			"param":  "filters",
			"reason": err.Error(),
		})
	}
	return filters, nil
}

// formatResults flattens ranked chunks for the response
func formatResults(results []types.SearchResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for i, r := range results {
		item := map[string]interface{}{
			"rank":  i + 1,
			"id":    r.Item.ID,
			"url":   r.Item.SourceURL,
			"title": r.Item.Title,
			"text":  r.Item.Text,
			"score": r.Score,
		}
		if v, ok := r.VectorScore(); ok {
			item["vector_score"] = v
		}
		if v, ok := r.BM25Score(); ok {
			item["bm25_score"] = v
		}
		if r.Item.Metadata != nil {
			item["category"] = r.Item.Metadata.PrimaryCategory
			item["technical_level"] = r.Item.Metadata.TechnicalLevel
			item["summary"] = r.Item.Metadata.Summary
		}
		out = append(out, item)
	}
	return out
}

// validateCrawlPath checks that path names a readable crawl output file
func validateCrawlPath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrIsDirectory
	}
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return ErrNotJSON
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an array of strings, skipping other element types
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory")
	ErrNotJSON         = errors.New("crawl output must be a .json file")
)
