package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/engine"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/indexer"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/metadata"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/router"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/storage"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// mockEngine implements Engine with overridable behavior
type mockEngine struct {
	searchFunc  func(ctx context.Context, query string, topK int, ratio float64, filters *types.Filters) ([]types.SearchResult, error)
	routeFunc   func(ctx context.Context, query string, opts router.Options) (*types.RouteResult, error)
	extractFunc func(ctx context.Context, text, id string, opts metadata.Options) (*types.Metadata, error)
	invalidFunc func(ctx context.Context, text string) error
	ingestFunc  func(ctx context.Context, path string, opts indexer.IndexOptions) (*indexer.Statistics, error)
	statusFunc  func(ctx context.Context) (*engine.Status, error)
}

func (m *mockEngine) PerformHybridSearch(ctx context.Context, query string, topK int, ratio float64, filters *types.Filters) ([]types.SearchResult, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, query, topK, ratio, filters)
	}
	return nil, nil
}

func (m *mockEngine) RouteQuery(ctx context.Context, query string, opts router.Options) (*types.RouteResult, error) {
	if m.routeFunc != nil {
		return m.routeFunc(ctx, query, opts)
	}
	return &types.RouteResult{QueryAnalysis: types.UnclassifiedAnalysis()}, nil
}

func (m *mockEngine) ExtractMetadata(ctx context.Context, text, id string, opts metadata.Options) (*types.Metadata, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, text, id, opts)
	}
	return &types.Metadata{PrimaryCategory: "product", TechnicalLevel: 2, Summary: "s"}, nil
}

func (m *mockEngine) InvalidateMetadata(ctx context.Context, text string) error {
	if m.invalidFunc != nil {
		return m.invalidFunc(ctx, text)
	}
	return nil
}

func (m *mockEngine) IngestFile(ctx context.Context, path string, opts indexer.IndexOptions) (*indexer.Statistics, error) {
	if m.ingestFunc != nil {
		return m.ingestFunc(ctx, path, opts)
	}
	return &indexer.Statistics{}, nil
}

func (m *mockEngine) Status(ctx context.Context) (*engine.Status, error) {
	if m.statusFunc != nil {
		return m.statusFunc(ctx)
	}
	return &engine.Status{Storage: &storage.Status{}}, nil
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args

	result, err := handler(context.Background(), req)
	if err != nil {
		return nil, err
	}
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, nil
}

func requireCode(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func sampleResult(id string, score float64) types.SearchResult {
	return types.NewSearchResult(types.Chunk{
		ID:        id,
		SourceURL: "https://acme.test/" + id,
		Text:      "text " + id,
		Metadata:  &types.Metadata{PrimaryCategory: "security", TechnicalLevel: 3, Summary: "s"},
	}, score).WithBM25Score(score)
}

func TestHandleHybridSearch(t *testing.T) {
	var (
		gotTopK    int
		gotRatio   float64
		gotFilters *types.Filters
	)
	eng := &mockEngine{
		searchFunc: func(ctx context.Context, query string, topK int, ratio float64, filters *types.Filters) ([]types.SearchResult, error) {
			gotTopK, gotRatio, gotFilters = topK, ratio, filters
			return []types.SearchResult{sampleResult("a", 1), sampleResult("b", 0.4)}, nil
		},
	}
	s := NewServer(eng, nil)

	out, err := callTool(t, s.handleHybridSearch, map[string]interface{}{
		"query":        "okta sso",
		"top_k":        float64(5),
		"hybrid_ratio": 0.25,
		"filters": map[string]interface{}{
			"categories":          []interface{}{"security"},
			"min_technical_level": float64(2),
			"created_after":       "2024-01-01T00:00:00Z",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, gotTopK)
	assert.Equal(t, 0.25, gotRatio)
	require.NotNil(t, gotFilters)
	assert.Equal(t, []string{"security"}, gotFilters.Categories)
	assert.Equal(t, 2, gotFilters.MinTechnicalLevel)
	require.NotNil(t, gotFilters.CreatedAfter)
	assert.True(t, gotFilters.CreatedAfter.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	assert.EqualValues(t, 2, out["total"])
	results := out["results"].([]interface{})
	first := results[0].(map[string]interface{})
	assert.Equal(t, "a", first["id"])
	assert.Equal(t, "security", first["category"])
	assert.Contains(t, first, "bm25_score")
	assert.NotContains(t, first, "vector_score")
}

func TestHandleHybridSearch_Defaults(t *testing.T) {
	var gotTopK int
	var gotRatio float64
	eng := &mockEngine{
		searchFunc: func(ctx context.Context, query string, topK int, ratio float64, filters *types.Filters) ([]types.SearchResult, error) {
			gotTopK, gotRatio = topK, ratio
			assert.Nil(t, filters)
			return nil, nil
		},
	}
	s := NewServer(eng, nil)

	_, err := callTool(t, s.handleHybridSearch, map[string]interface{}{"query": "pricing"})
	require.NoError(t, err)
	assert.Equal(t, 10, gotTopK)
	assert.Equal(t, 0.5, gotRatio)
}

func TestHandleHybridSearch_InvalidParams(t *testing.T) {
	s := NewServer(&mockEngine{}, nil)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"blank query", map[string]interface{}{"query": "  "}, ErrorCodeEmptyQuery},
		{"top_k too large", map[string]interface{}{"query": "q", "top_k": float64(101)}, ErrorCodeInvalidParams},
		{"ratio out of range", map[string]interface{}{"query": "q", "hybrid_ratio": 1.5}, ErrorCodeInvalidParams},
		{"bad timestamp", map[string]interface{}{"query": "q", "filters": map[string]interface{}{"created_before": "yesterday"}}, ErrorCodeInvalidParams},
		{"inverted levels", map[string]interface{}{"query": "q", "filters": map[string]interface{}{
			"min_technical_level": float64(4), "max_technical_level": float64(2),
		}}, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callTool(t, s.handleHybridSearch, tt.args)
			requireCode(t, err, tt.code)
		})
	}
}

func TestHandleHybridSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid query", types.ErrInvalidQuery, ErrorCodeInvalidParams},
		{"timeout", &types.StageError{Stage: types.StageSearch, Err: types.ErrStageTimeout}, ErrorCodeTimeout},
		{"unavailable", types.ErrCollaboratorUnavailable, ErrorCodeUnavailable},
		{"rate limited", types.ErrRateLimited, ErrorCodeUnavailable},
		{"other", errors.New("boom"), ErrorCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&mockEngine{
				searchFunc: func(context.Context, string, int, float64, *types.Filters) ([]types.SearchResult, error) {
					return nil, tt.err
				},
			}, nil)

			_, err := callTool(t, s.handleHybridSearch, map[string]interface{}{"query": "q"})
			requireCode(t, err, tt.code)
		})
	}
}

func TestHandleRouteQuery(t *testing.T) {
	var got router.Options
	expansion := 1.5
	eng := &mockEngine{
		routeFunc: func(ctx context.Context, query string, opts router.Options) (*types.RouteResult, error) {
			got = opts
			return &types.RouteResult{
				QueryAnalysis:  types.QueryAnalysis{PrimaryCategory: "security", QueryType: types.QueryTypeHowTo, TechnicalLevel: 3},
				Results:        []types.SearchResult{sampleResult("a", 1)},
				ProcessingTime: types.ProcessingTime{Analysis: 1, Expansion: &expansion, Search: 2, Total: 4.5},
				Debug:          &types.RouteDebug{RequestID: "req-1", States: []string{"ANALYZING", "DONE"}},
			}, nil
		},
	}
	s := NewServer(eng, nil)

	out, err := callTool(t, s.handleRouteQuery, map[string]interface{}{
		"query":               "how do I enable sso",
		"use_query_expansion": true,
		"debug":               true,
		"hybrid_ratio":        float64(0),
	})
	require.NoError(t, err)

	assert.True(t, got.UseQueryExpansion)
	assert.False(t, got.UseReranking)
	assert.True(t, got.Debug)
	require.NotNil(t, got.HybridRatio)
	assert.Equal(t, 0.0, *got.HybridRatio)

	analysis := out["query_analysis"].(map[string]interface{})
	assert.Equal(t, "security", analysis["primaryCategory"])
	timing := out["processing_time"].(map[string]interface{})
	assert.Equal(t, 1.5, timing["expansion"])
	assert.NotContains(t, timing, "reranking")
	assert.Equal(t, "req-1", out["debug"].(map[string]interface{})["requestId"])
}

func TestHandleRouteQuery_OmittedRatioUsesDefault(t *testing.T) {
	eng := &mockEngine{
		routeFunc: func(ctx context.Context, query string, opts router.Options) (*types.RouteResult, error) {
			assert.Nil(t, opts.HybridRatio)
			assert.Zero(t, opts.TopK)
			return &types.RouteResult{}, nil
		},
	}
	s := NewServer(eng, nil)

	out, err := callTool(t, s.handleRouteQuery, map[string]interface{}{"query": "pricing"})
	require.NoError(t, err)
	assert.NotContains(t, out, "debug")
}

func TestHandleRouteQuery_StageError(t *testing.T) {
	s := NewServer(&mockEngine{
		routeFunc: func(context.Context, string, router.Options) (*types.RouteResult, error) {
			return nil, &types.StageError{Stage: types.StageSearch, Err: types.ErrCollaboratorUnavailable}
		},
	}, nil)

	_, err := callTool(t, s.handleRouteQuery, map[string]interface{}{"query": "q"})
	mcpErr := requireCode(t, err, ErrorCodeUnavailable)
	assert.Equal(t, types.StageSearch, mcpErr.Data.(map[string]interface{})["stage"])
}

func TestHandleExtractMetadata(t *testing.T) {
	var got metadata.Options
	var gotID string
	eng := &mockEngine{
		extractFunc: func(ctx context.Context, text, id string, opts metadata.Options) (*types.Metadata, error) {
			got, gotID = opts, id
			return &types.Metadata{PrimaryCategory: "security", TechnicalLevel: 3, Summary: "SSO", Keywords: []string{"sso"}}, nil
		},
	}
	s := NewServer(eng, nil)

	out, err := callTool(t, s.handleExtractMetadata, map[string]interface{}{
		"text":  "Enable Okta SSO",
		"id":    "doc-1",
		"model": "gpt-4o",
	})
	require.NoError(t, err)

	assert.Equal(t, "doc-1", gotID)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.True(t, got.UseCaching)
	meta := out["metadata"].(map[string]interface{})
	assert.Equal(t, "security", meta["primaryCategory"])
}

func TestHandleExtractMetadata_Errors(t *testing.T) {
	s := NewServer(&mockEngine{}, nil)
	_, err := callTool(t, s.handleExtractMetadata, map[string]interface{}{"text": ""})
	requireCode(t, err, ErrorCodeInvalidParams)

	s = NewServer(&mockEngine{
		extractFunc: func(context.Context, string, string, metadata.Options) (*types.Metadata, error) {
			return nil, engine.ErrExtractionUnavailable
		},
	}, nil)
	_, err = callTool(t, s.handleExtractMetadata, map[string]interface{}{"text": "x"})
	requireCode(t, err, ErrorCodeUnavailable)
}

func TestHandleInvalidateMetadata(t *testing.T) {
	var got string
	s := NewServer(&mockEngine{
		invalidFunc: func(ctx context.Context, text string) error {
			got = text
			return nil
		},
	}, nil)

	out, err := callTool(t, s.handleInvalidateMetadata, map[string]interface{}{"text": "Enable Okta SSO"})
	require.NoError(t, err)
	assert.Equal(t, "Enable Okta SSO", got)
	assert.Equal(t, types.Fingerprint("Enable Okta SSO"), out["fingerprint"])
	assert.Equal(t, true, out["invalidated"])

	_, err = callTool(t, s.handleInvalidateMetadata, map[string]interface{}{"text": "  "})
	requireCode(t, err, ErrorCodeInvalidParams)

	s = NewServer(&mockEngine{
		invalidFunc: func(context.Context, string) error { return errors.New("disk full") },
	}, nil)
	_, err = callTool(t, s.handleInvalidateMetadata, map[string]interface{}{"text": "x"})
	requireCode(t, err, ErrorCodeInternalError)
}

func TestHandleIngestCrawl(t *testing.T) {
	dir := t.TempDir()
	crawl := filepath.Join(dir, "crawl.json")
	require.NoError(t, os.WriteFile(crawl, []byte(`{}`), 0600))
	notJSON := filepath.Join(dir, "crawl.txt")
	require.NoError(t, os.WriteFile(notJSON, []byte(`{}`), 0600))

	var gotOpts indexer.IndexOptions
	eng := &mockEngine{
		ingestFunc: func(ctx context.Context, path string, opts indexer.IndexOptions) (*indexer.Statistics, error) {
			gotOpts = opts
			return &indexer.Statistics{
				PagesProcessed: 3,
				ChunksIndexed:  7,
				ErrorMessages:  []string{"1", "2", "3", "4", "5", "6"},
			}, nil
		},
	}
	s := NewServer(eng, nil)

	out, err := callTool(t, s.handleIngestCrawl, map[string]interface{}{"path": crawl})
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultCursor, gotOpts.Cursor)
	assert.True(t, gotOpts.Resume)
	assert.EqualValues(t, 7, out["chunks_indexed"])
	assert.Len(t, out["errors"], 5)
	assert.EqualValues(t, 6, out["error_count"])

	tests := []struct {
		name string
		path string
		code int
	}{
		{"relative", "crawl.json", ErrorCodeInvalidParams},
		{"missing", filepath.Join(dir, "missing.json"), ErrorCodeFileNotFound},
		{"directory", dir, ErrorCodeInvalidParams},
		{"not json", notJSON, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callTool(t, s.handleIngestCrawl, map[string]interface{}{"path": tt.path})
			requireCode(t, err, tt.code)
		})
	}
}

func TestHandleIngestCrawl_InProgress(t *testing.T) {
	crawl := filepath.Join(t.TempDir(), "crawl.json")
	require.NoError(t, os.WriteFile(crawl, []byte(`{}`), 0600))

	s := NewServer(&mockEngine{
		ingestFunc: func(context.Context, string, indexer.IndexOptions) (*indexer.Statistics, error) {
			return nil, indexer.ErrIndexingInProgress
		},
	}, nil)

	_, err := callTool(t, s.handleIngestCrawl, map[string]interface{}{"path": crawl, "resume": false})
	requireCode(t, err, ErrorCodeIndexingInProgress)
}

func TestHandleGetStatus(t *testing.T) {
	eng := &mockEngine{
		statusFunc: func(ctx context.Context) (*engine.Status, error) {
			return &engine.Status{
				Storage: &storage.Status{
					ChunksCount: 12,
					Categories:  map[string]int{"security": 4},
					Health:      storage.HealthStatus{DatabaseAccessible: true},
				},
				CorpusDocuments: 12,
				VectorBackend:   "sqlite",
				LLMConfigured:   true,
			}, nil
		},
	}
	s := NewServer(eng, nil)

	out, err := callTool(t, s.handleGetStatus, map[string]interface{}{})
	require.NoError(t, err)

	stats := out["statistics"].(map[string]interface{})
	assert.EqualValues(t, 12, stats["chunks_count"])
	assert.EqualValues(t, 12, stats["corpus_documents"])
	assert.Equal(t, true, stats["llm_configured"])
	assert.EqualValues(t, 4, stats["categories"].(map[string]interface{})["security"])
	assert.Equal(t, true, out["health"].(map[string]interface{})["database_accessible"])
}

func TestHandleGetStatus_Error(t *testing.T) {
	s := NewServer(&mockEngine{
		statusFunc: func(context.Context) (*engine.Status, error) { return nil, errors.New("db closed") },
	}, nil)

	_, err := callTool(t, s.handleGetStatus, map[string]interface{}{})
	requireCode(t, err, ErrorCodeInternalError)
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := NewServer(&mockEngine{}, nil)
	require.NotNil(t, s.mcp)

	names := []string{}
	for _, tool := range []mcp.Tool{hybridSearchTool(), routeQueryTool(), extractMetadataTool(), invalidateMetadataTool(), ingestCrawlTool(), getStatusTool()} {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
	}
	assert.Equal(t, []string{"hybrid_search", "route_query", "extract_metadata", "invalidate_metadata", "ingest_crawl", "get_status"}, names)
	assert.Equal(t, []string{"query"}, hybridSearchTool().InputSchema.Required)
}

func TestEngineSatisfiesInterface(t *testing.T) {
	var _ Engine = (*engine.Engine)(nil)
}
