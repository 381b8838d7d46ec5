package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/metadata"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/router"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

var (
	searchLimit      int
	searchRatio      float64
	searchCategories []string
	searchJSON       bool

	routeExpand bool
	routeRerank bool
	routeDebug  bool
	routeLimit  int
	routeJSON   bool

	extractID      string
	extractModel   string
	extractNoCache bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a hybrid search",
	Long: `Ranks chunks by a blend of vector similarity and BM25.
--ratio 1 is vector only, 0 is BM25 only.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var routeCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question through the query router",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoute,
}

var extractCmd = &cobra.Command{
	Use:   "extract <file|->",
	Short: "Extract metadata from a text file or stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchRatio, "ratio", 0.5, "vector weight in [0,1]")
	searchCmd.Flags().StringSliceVar(&searchCategories, "category", nil, "restrict to these categories")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")

	routeCmd.Flags().BoolVar(&routeExpand, "expand", false, "search paraphrases of the question")
	routeCmd.Flags().BoolVar(&routeRerank, "rerank", false, "rerank the top candidates")
	routeCmd.Flags().BoolVar(&routeDebug, "debug", false, "include the pipeline trace")
	routeCmd.Flags().IntVarP(&routeLimit, "limit", "n", 0, "maximum number of results (0 uses the configured default)")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "output the result as JSON")

	extractCmd.Flags().StringVar(&extractID, "id", "", "document id used in logs and errors")
	extractCmd.Flags().StringVar(&extractModel, "model", "", "override the configured model")
	extractCmd.Flags().BoolVar(&extractNoCache, "no-cache", false, "always call the model")

	rootCmd.AddCommand(searchCmd, routeCmd, extractCmd)
}

func categoryFilters() *types.Filters {
	if len(searchCategories) == 0 {
		return nil
	}
	return &types.Filters{Categories: searchCategories}
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	eng, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	results, err := eng.PerformHybridSearch(ctx, args[0], searchLimit, searchRatio, categoryFilters())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(cmd, results)
	}
	outputResults(cmd, results)
	return nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	eng, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	result, err := eng.RouteQuery(ctx, args[0], router.Options{
		UseQueryExpansion: routeExpand,
		UseReranking:      routeRerank,
		Debug:             routeDebug,
		TopK:              routeLimit,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if routeJSON {
		return outputJSON(cmd, result)
	}

	a := result.QueryAnalysis
	cmd.Printf("Category: %s  Type: %s  Level: %d\n", a.PrimaryCategory, a.QueryType, a.TechnicalLevel)
	t := result.ProcessingTime
	cmd.Printf("Timing: analysis %.1fms, search %.1fms, total %.1fms\n", t.Analysis, t.Search, t.Total)
	if result.Degraded {
		cmd.Println("Warning: one or more stages degraded")
	}
	if result.Debug != nil {
		cmd.Printf("Request %s: %s\n", result.Debug.RequestID, strings.Join(result.Debug.States, " -> "))
		if len(result.Debug.ExpandedQuery) > 0 {
			cmd.Printf("Expanded: %s\n", strings.Join(result.Debug.ExpandedQuery, " | "))
		}
	}
	cmd.Println()
	outputResults(cmd, result.Results)
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	var (
		text []byte
		err  error
	)
	if args[0] == "-" {
		text, err = io.ReadAll(cmd.InOrStdin())
	} else {
		text, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	eng, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	id := extractID
	if id == "" {
		id = args[0]
	}
	meta, err := eng.ExtractMetadata(ctx, string(text), id, metadata.Options{
		Model:      extractModel,
		UseCaching: !extractNoCache,
	})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	return outputJSON(cmd, meta)
}

func outputJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputResults(cmd *cobra.Command, results []types.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		// Format: [N] Title (Score) URL
		title := r.Item.Title
		if title == "" {
			title = r.Item.ID
		}
		cmd.Printf("[%d] %s (%.3f)\n", i+1, title, r.Score)
		cmd.Printf("    %s\n", r.Item.SourceURL)
		if r.Item.Metadata != nil {
			cmd.Printf("    %s, level %d\n", r.Item.Metadata.PrimaryCategory, r.Item.Metadata.TechnicalLevel)
		}
		cmd.Printf("    %s\n", snippet(r.Item.Text, 160))
		cmd.Println()
	}
}

func snippet(text string, limit int) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
