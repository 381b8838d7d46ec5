package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/analyzer"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/expander"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/reranker"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/searcher"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// State is a pipeline state of one routed request
type State string

const (
	StateAnalyzing State = "ANALYZING"
	StateExpanding State = "EXPANDING"
	StateSearching State = "SEARCHING"
	StateReranking State = "RERANKING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Ranker runs one hybrid search. *searcher.Searcher satisfies it.
type Ranker interface {
	Rank(ctx context.Context, req searcher.Request) (*searcher.Response, error)
}

// Options control a single routed query
type Options struct {
	UseQueryExpansion bool
	UseReranking      bool
	Debug             bool

	TopK        int            // 0 uses the configured default
	HybridRatio *float64       // nil uses the configured default
	Filters     *types.Filters // Optional
}

// Config holds router tunables
type Config struct {
	TopK                int
	HybridRatio         float64
	MaxExpansions       int
	MaxParallelSearches int
	UseCache            bool // let the ranker answer repeated variants from its response cache

	RequestTimeout   time.Duration
	AnalysisTimeout  time.Duration
	ExpansionTimeout time.Duration
	SearchTimeout    time.Duration
	RerankTimeout    time.Duration
}

// DefaultConfig returns the router defaults
func DefaultConfig() Config {
	return Config{
		TopK:                10,
		HybridRatio:         0.5,
		MaxExpansions:       expander.DefaultMaxVariants,
		MaxParallelSearches: 4,
		RequestTimeout:      30 * time.Second,
		AnalysisTimeout:     5 * time.Second,
		ExpansionTimeout:    5 * time.Second,
		SearchTimeout:       10 * time.Second,
		RerankTimeout:       10 * time.Second,
	}
}

// Router sequences analysis, expansion, hybrid search and reranking
type Router struct {
	analyzer analyzer.Analyzer
	expander expander.Expander
	ranker   Ranker
	reranker reranker.Reranker
	cfg      Config
	logger   *zap.Logger
}

// New creates a router. The analyzer, expander and reranker may be nil:
// a nil analyzer yields unclassified analyses and nil optional stages are
// skipped even when requested.
func New(a analyzer.Analyzer, e expander.Expander, ranker Ranker, rr reranker.Reranker, cfg Config, logger *zap.Logger) *Router {
	defaults := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.MaxExpansions <= 0 {
		cfg.MaxExpansions = defaults.MaxExpansions
	}
	if cfg.MaxParallelSearches <= 0 {
		cfg.MaxParallelSearches = defaults.MaxParallelSearches
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = defaults.AnalysisTimeout
	}
	if cfg.ExpansionTimeout <= 0 {
		cfg.ExpansionTimeout = defaults.ExpansionTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaults.SearchTimeout
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = defaults.RerankTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		analyzer: a,
		expander: e,
		ranker:   ranker,
		reranker: rr,
		cfg:      cfg,
		logger:   logger,
	}
}

// run tracks one request through the pipeline
type run struct {
	id       string
	states   []string
	degraded []string
	logger   *zap.Logger
}

func (r *run) enter(s State) {
	r.states = append(r.states, string(s))
}

func (r *run) degrade(stage string, err error) {
	r.degraded = append(r.degraded, stage)
	r.logger.Warn("stage degraded", zap.String("stage", stage), zap.Error(err))
}

func (r *run) fail(err error) error {
	r.enter(StateFailed)
	r.logger.Warn("route failed", zap.Strings("states", r.states), zap.Error(err))
	return err
}

// RouteQuery answers query through the staged pipeline. It returns either a
// complete RouteResult or a *types.StageError naming the failing stage.
func (r *Router) RouteQuery(ctx context.Context, query string, opts Options) (*types.RouteResult, error) {
	if err := r.validate(query, opts); err != nil {
		return nil, err
	}

	start := time.Now()
	id := uuid.NewString()
	p := &run{id: id, logger: r.logger.With(zap.String("request_id", id))}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	result := &types.RouteResult{}

	// ANALYZING
	p.enter(StateAnalyzing)
	stageStart := time.Now()
	analysis, err := r.analyze(ctx, query)
	result.ProcessingTime.Analysis = types.Milliseconds(time.Since(stageStart))
	if err != nil {
		if aborted := abort(ctx, types.StageAnalysis); aborted != nil {
			return nil, p.fail(aborted)
		}
		p.degrade(types.StageAnalysis, err)
		analysis = types.UnclassifiedAnalysis()
	}
	result.QueryAnalysis = analysis

	// EXPANDING
	queries := []string{query}
	if opts.UseQueryExpansion && r.expander != nil {
		p.enter(StateExpanding)
		stageStart = time.Now()
		variants, err := r.expand(ctx, query, analysis)
		elapsed := types.Milliseconds(time.Since(stageStart))
		result.ProcessingTime.Expansion = &elapsed
		if err != nil {
			if aborted := abort(ctx, types.StageExpansion); aborted != nil {
				return nil, p.fail(aborted)
			}
			p.degrade(types.StageExpansion, err)
		} else {
			queries = expander.Normalize(query, variants, r.cfg.MaxExpansions)
		}
	}

	// SEARCHING
	p.enter(StateSearching)
	stageStart = time.Now()
	results, candidates, err := r.search(ctx, p, queries, opts)
	result.ProcessingTime.Search = types.Milliseconds(time.Since(stageStart))
	if err != nil {
		if aborted := abort(ctx, types.StageSearch); aborted != nil {
			return nil, p.fail(aborted)
		}
		return nil, p.fail(&types.StageError{Stage: types.StageSearch, Err: err})
	}

	// RERANKING
	if opts.UseReranking && r.reranker != nil {
		p.enter(StateReranking)
		stageStart = time.Now()
		reranked, err := r.rerank(ctx, query, analysis, results)
		elapsed := types.Milliseconds(time.Since(stageStart))
		result.ProcessingTime.Reranking = &elapsed
		switch {
		case err != nil:
			if aborted := abort(ctx, types.StageReranking); aborted != nil {
				return nil, p.fail(aborted)
			}
			p.degrade(types.StageReranking, err)
		case !reranker.SameCandidates(results, reranked):
			p.degrade(types.StageReranking, errors.New("reranker changed the candidate set"))
		default:
			results = reranked
		}
	}

	p.enter(StateDone)
	result.Results = results
	result.Degraded = len(p.degraded) > 0
	result.ProcessingTime.Total = types.Milliseconds(time.Since(start))

	if opts.Debug {
		result.Debug = &types.RouteDebug{
			RequestID:      id,
			ExpandedQuery:  queries,
			CandidateCount: candidates,
			DegradedStages: p.degraded,
			States:         p.states,
		}
	}

	p.logger.Debug("route completed",
		zap.Int("results", len(results)),
		zap.Bool("degraded", result.Degraded),
		zap.Float64("total_ms", result.ProcessingTime.Total))
	return result, nil
}

func (r *Router) validate(query string, opts Options) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrInvalidQuery)
	}
	if opts.TopK < 0 {
		return fmt.Errorf("%w: topK cannot be negative", types.ErrInvalidQuery)
	}
	if opts.HybridRatio != nil {
		ratio := *opts.HybridRatio
		if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
			return fmt.Errorf("%w: hybridRatio %v outside [0, 1]", types.ErrInvalidQuery, ratio)
		}
	}
	return opts.Filters.Validate()
}

func (r *Router) analyze(ctx context.Context, query string) (types.QueryAnalysis, error) {
	if r.analyzer == nil {
		return types.UnclassifiedAnalysis(), nil
	}
	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.AnalysisTimeout)
	defer cancel()
	return r.analyzer.Analyze(stageCtx, query)
}

func (r *Router) expand(ctx context.Context, query string, analysis types.QueryAnalysis) ([]string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.ExpansionTimeout)
	defer cancel()
	return r.expander.Expand(stageCtx, query, analysis)
}

func (r *Router) rerank(ctx context.Context, query string, analysis types.QueryAnalysis, results []types.SearchResult) ([]types.SearchResult, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.RerankTimeout)
	defer cancel()
	return r.reranker.Rerank(stageCtx, query, analysis, results)
}

// search ranks every query variant concurrently and merges the results by
// id keeping the highest score. The original query must succeed; failed
// variants are dropped.
func (r *Router) search(ctx context.Context, p *run, queries []string, opts Options) ([]types.SearchResult, int, error) {
	if r.ranker == nil {
		return nil, 0, fmt.Errorf("%w: no ranker configured", types.ErrCollaboratorUnavailable)
	}

	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	topK := opts.TopK
	if topK == 0 {
		topK = r.cfg.TopK
	}
	ratio := r.cfg.HybridRatio
	if opts.HybridRatio != nil {
		ratio = *opts.HybridRatio
	}

	responses := make([]*searcher.Response, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallelSearches)
	for i, q := range queries {
		g.Go(func() error {
			responses[i], errs[i] = r.ranker.Rank(stageCtx, searcher.Request{
				Query:       q,
				TopK:        topK,
				HybridRatio: ratio,
				Filters:     opts.Filters,
				UseCache:    r.cfg.UseCache,
			})
			return nil
		})
	}
	_ = g.Wait()

	if err := errs[0]; err != nil {
		if ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%w: search exceeded %s: %v", types.ErrStageTimeout, r.cfg.SearchTimeout, err)
		}
		return nil, 0, err
	}

	merged := make(map[string]types.SearchResult)
	for i, resp := range responses {
		if errs[i] != nil {
			p.degrade(types.StageSearch+":variant", fmt.Errorf("variant %q: %w", queries[i], errs[i]))
			continue
		}
		for _, path := range resp.DegradedPaths {
			p.degrade(types.StageSearch+":"+path, fmt.Errorf("variant %q ranked without %s retrieval", queries[i], path))
		}
		for _, res := range resp.Results {
			if prev, ok := merged[res.Item.ID]; !ok || res.Score > prev.Score {
				merged[res.Item.ID] = res
			}
		}
	}

	results := make([]types.SearchResult, 0, len(merged))
	for _, res := range merged {
		results = append(results, res)
	}
	searcher.SortResults(results)

	candidates := len(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, candidates, nil
}

// abort converts an expired or cancelled request context into a stage error
func abort(ctx context.Context, stage string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.StageError{Stage: stage, Err: fmt.Errorf("%w: request deadline exceeded", types.ErrStageTimeout)}
	}
	return &types.StageError{Stage: stage, Err: err}
}
