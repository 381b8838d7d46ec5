package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/engine"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/indexer"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/metadata"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/router"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "ragengine"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Engine is the retrieval surface the tools call. *engine.Engine satisfies it.
type Engine interface {
	PerformHybridSearch(ctx context.Context, query string, topK int, hybridRatio float64, filters *types.Filters) ([]types.SearchResult, error)
	RouteQuery(ctx context.Context, query string, opts router.Options) (*types.RouteResult, error)
	ExtractMetadata(ctx context.Context, text, id string, opts metadata.Options) (*types.Metadata, error)
	InvalidateMetadata(ctx context.Context, text string) error
	IngestFile(ctx context.Context, path string, opts indexer.IndexOptions) (*indexer.Statistics, error)
	Status(ctx context.Context) (*engine.Status, error)
}

// Server wraps the MCP server with the engine
type Server struct {
	mcp    *server.MCPServer
	engine Engine
	logger *zap.Logger
}

// NewServer creates a new MCP server instance
func NewServer(eng Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		engine: eng,
		logger: logger,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes.
// stdout is reserved for protocol messages.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(hybridSearchTool(), s.handleHybridSearch)
	s.mcp.AddTool(routeQueryTool(), s.handleRouteQuery)
	s.mcp.AddTool(extractMetadataTool(), s.handleExtractMetadata)
	s.mcp.AddTool(invalidateMetadataTool(), s.handleInvalidateMetadata)
	s.mcp.AddTool(ingestCrawlTool(), s.handleIngestCrawl)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
