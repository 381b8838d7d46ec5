package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/engine"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/indexer"
)

var (
	ingestCursor   string
	ingestNoResume bool
	ingestJSON     bool
	sweepJSON      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <crawl.json>",
	Short: "Index the successful pages of a crawl output file",
	Long: `Chunks, enriches, embeds and stores every page whose status is
"success". Progress is saved after each batch so an interrupted run resumes
where it stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired metadata cache entries",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCursor, "cursor", engine.DefaultCursor, "progress cursor name")
	ingestCmd.Flags().BoolVar(&ingestNoResume, "no-resume", false, "ignore saved progress and index every page")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output statistics as JSON")
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "output result as JSON")
	rootCmd.AddCommand(ingestCmd, sweepCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	eng, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	stats, err := eng.IngestFile(ctx, args[0], indexer.IndexOptions{
		Cursor: ingestCursor,
		Resume: !ingestNoResume,
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal statistics: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if stats.ResumedAfter != "" {
		cmd.Printf("Resumed after %s\n", stats.ResumedAfter)
	}
	cmd.Printf("Pages processed:   %d (skipped %d)\n", stats.PagesProcessed, stats.PagesSkipped)
	cmd.Printf("Chunks indexed:    %d (failed %d)\n", stats.ChunksIndexed, stats.ChunksFailed)
	if stats.CursorHeldAt != "" {
		cmd.Printf("Cursor held at:    %s (retried on resume)\n", stats.CursorHeldAt)
	}
	cmd.Printf("Metadata failures: %d\n", stats.MetadataFailures)
	cmd.Printf("Tokens estimated:  %d\n", stats.TokensEstimated)
	cmd.Printf("Corpus documents:  %d\n", stats.CorpusDocuments)
	cmd.Printf("Duration:          %s\n", stats.Duration.Round(time.Millisecond))
	if len(stats.ErrorMessages) > 0 {
		cmd.Println("Errors:")
		cmd.Println("  " + strings.Join(stats.ErrorMessages, "\n  "))
	}
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	eng, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	removed, err := eng.Sweep(ctx)
	if err != nil {
		return err
	}
	if sweepJSON {
		cmd.Printf("{\"removed\": %d}\n", removed)
		return nil
	}
	cmd.Printf("Removed %d expired cache entries\n", removed)
	return nil
}
