package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/config"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/engine"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ragengine",
	Short: "Hybrid retrieval and query routing for the company knowledge base",
	Long: `ragengine indexes crawled company pages and answers questions with
hybrid vector + BM25 retrieval, optional query expansion and reranking.

Configuration is read from an optional TOML file, a .env file in the
working directory and RAG_* / OPENAI_API_KEY environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig reads configuration and builds the process logger
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// openEngine loads configuration and opens the engine
func openEngine(ctx context.Context) (*engine.Engine, *zap.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.Open(ctx, cfg, engine.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("open engine: %w", err)
	}
	return eng, logger, nil
}
