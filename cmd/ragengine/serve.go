package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/httpapi"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/mcp"
)

var httpAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Runs the Model Context Protocol server on stdin/stdout. Logs go to
stderr. The expired metadata cache sweep runs on the configured schedule.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Run the JSON HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runHTTP,
}

func init() {
	httpCmd.Flags().StringVar(&httpAddr, "addr", "", "listen address (overrides http.addr)")
	rootCmd.AddCommand(serveCmd, httpCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	eng, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	scheduler, err := eng.Scheduler()
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.Info("mcp server ready, listening on stdio", zap.String("version", version))
	if err := mcp.NewServer(eng, logger.Named("mcp")).Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func runHTTP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	eng, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	scheduler, err := eng.Scheduler()
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	cfg := eng.Config()
	addr := httpAddr
	if addr == "" {
		addr = cfg.HTTP.Addr
	}

	hc := httpapi.DefaultConfig()
	hc.DefaultTopK = cfg.Search.DefaultTopK
	hc.DefaultHybridRatio = cfg.Search.HybridRatio
	return httpapi.New(eng, hc, logger.Named("http")).ListenAndServe(ctx, addr)
}
