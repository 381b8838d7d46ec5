package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/analyzer"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/chunker"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/config"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/corpus"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/embedder"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/expander"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/indexer"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/llm"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/metadata"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/reranker"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/retry"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/router"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/searcher"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/storage"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/sweeper"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/vectorindex"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// DefaultCursor names the ingest cursor used when callers do not pick one
const DefaultCursor = "crawl"

// ErrExtractionUnavailable is returned by ExtractMetadata when no LLM is configured
var ErrExtractionUnavailable = fmt.Errorf("%w: no llm configured for metadata extraction", types.ErrCollaboratorUnavailable)

// Option customizes Open
type Option func(*options)

type options struct {
	client   llm.Client
	embedder embedder.Embedder
	logger   *zap.Logger
}

// WithLLMClient replaces the OpenAI client built from configuration
func WithLLMClient(client llm.Client) Option {
	return func(o *options) { o.client = client }
}

// WithEmbedder replaces the embedder built from configuration
func WithEmbedder(emb embedder.Embedder) Option {
	return func(o *options) { o.embedder = emb }
}

// WithLogger sets the logger shared by every component
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Engine owns the retrieval components and exposes the public entry points
type Engine struct {
	cfg       *config.Config
	store     storage.Storage
	vectors   *vectorindex.PGVector // nil with the sqlite backend
	embedder  embedder.Embedder
	client    llm.Client // nil when no key is configured
	stats     *corpus.Statistics
	cache     *metadata.Cache
	extractor *metadata.Extractor // nil when client is nil
	searcher  *searcher.Searcher
	router    *router.Router
	indexer   *indexer.Indexer
	chunker   *chunker.Chunker
	sweep     *sweeper.CacheSweep
	logger    *zap.Logger
}

// Open builds an engine from cfg. Corpus statistics are rebuilt from the
// stored chunks before Open returns.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	e := &Engine{cfg: cfg, logger: o.logger}
	if err := e.init(ctx, o); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) init(ctx context.Context, o options) error {
	cfg := e.cfg

	if dir := filepath.Dir(cfg.Storage.Path); dir != "." && !strings.HasPrefix(cfg.Storage.Path, ":memory:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	e.store = store

	e.embedder = o.embedder
	if e.embedder == nil {
		if e.embedder, err = embedder.NewFromConfig(cfg); err != nil {
			return fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	e.client = o.client
	if e.client == nil && cfg.LLM.APIKey != "" {
		client, err := llm.NewOpenAIClient(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout.Duration,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize llm client: %w", err)
		}
		e.client = client
	}

	index := searcher.StoreIndex(e.store)
	if cfg.Vector.Backend == config.VectorBackendPGVector {
		e.vectors, err = vectorindex.Open(ctx, cfg.Vector.DSN, e.embedder.Dimension())
		if err != nil {
			return fmt.Errorf("failed to open pgvector index: %w", err)
		}
		index = e.vectors
	}

	e.stats = corpus.NewStatistics()
	scorer := corpus.NewScorer(e.stats, corpus.BM25Params{K1: cfg.Search.K1, B: cfg.Search.B})

	e.cache = metadata.NewCache(e.store,
		metadata.WithHotSize(cfg.Cache.HotSize),
		metadata.WithLogger(e.logger.Named("metadata-cache")))
	if e.client != nil {
		e.extractor = metadata.NewExtractor(e.client, e.cache, metadata.ExtractorConfig{
			Model:         cfg.LLM.Model,
			FallbackModel: cfg.LLM.FallbackModel,
			Retry: retry.Config{
				MaxAttempts: cfg.LLM.MaxAttempts,
				BaseDelay:   cfg.LLM.BaseDelay.Duration,
				MaxDelay:    cfg.LLM.MaxDelay.Duration,
				Multiplier:  retry.DefaultMultiplier,
			},
			TTL: cfg.Cache.TTL.Duration,
		}, e.logger.Named("extractor"))
	}

	sc := searcher.DefaultConfig()
	sc.Oversample = cfg.Search.Oversample
	sc.DefaultTopK = cfg.Search.DefaultTopK
	sc.MaxTopK = cfg.Search.MaxTopK
	sc.CacheResponses = cfg.Search.CacheResponses
	sc.CacheSize = 0
	if cfg.Search.CacheResponses {
		sc.CacheSize = cfg.Search.ResponseCacheSize
		sc.CacheTTL = cfg.Search.ResponseCacheTTL.Duration
	}
	e.searcher = searcher.NewSearcher(e.store, index, e.embedder, scorer, sc, e.logger.Named("searcher"))

	e.router = router.New(e.newAnalyzer(), e.newExpander(), e.searcher, e.newReranker(), router.Config{
		TopK:             cfg.Search.DefaultTopK,
		HybridRatio:      cfg.Search.HybridRatio,
		MaxExpansions:    cfg.Search.MaxExpansions,
		UseCache:         cfg.Search.CacheResponses,
		RequestTimeout:   cfg.Router.RequestTimeout.Duration,
		AnalysisTimeout:  cfg.Router.AnalysisTimeout.Duration,
		ExpansionTimeout: cfg.Router.ExpansionTimeout.Duration,
		SearchTimeout:    cfg.Router.SearchTimeout.Duration,
		RerankTimeout:    cfg.Router.RerankTimeout.Duration,
	}, e.logger.Named("router"))

	idxOpts := []indexer.Option{
		indexer.WithCacheInvalidator(e.searcher),
		indexer.WithLogger(e.logger.Named("indexer")),
	}
	if e.extractor != nil {
		idxOpts = append(idxOpts, indexer.WithExtractor(e.extractor))
	}
	if e.vectors != nil {
		idxOpts = append(idxOpts, indexer.WithVectorSink(e.vectors))
	}
	e.indexer = indexer.New(e.store, e.embedder, e.stats, indexer.Config{
		Workers:           cfg.Ingest.Workers,
		BatchSize:         cfg.Ingest.BatchSize,
		BatchDelay:        cfg.Ingest.BatchDelay.Duration,
		RequestsPerSecond: cfg.Ingest.RequestsPerSecond,
		Burst:             cfg.Ingest.Burst,
	}, idxOpts...)
	e.chunker = chunker.New(cfg.Ingest.ChunkWords, cfg.Ingest.ChunkOverlap)
	e.sweep = sweeper.NewCacheSweep(e.store, nil)

	n, err := e.indexer.Rebuild(ctx)
	if err != nil {
		return err
	}
	e.logger.Info("engine ready",
		zap.Int("documents", n),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("embedding_provider", e.embedder.Provider()),
		zap.Bool("llm", e.client != nil))
	return nil
}

// LLM-backed stages need a client; without one the rule implementations serve
func (e *Engine) useLLM(impl string) bool {
	return impl == config.ImplLLM && e.client != nil
}

func (e *Engine) newAnalyzer() analyzer.Analyzer {
	if e.useLLM(e.cfg.Router.Analyzer) {
		return analyzer.NewLLMAnalyzer(e.client, e.cfg.LLM.Model, nil, e.logger.Named("analyzer"))
	}
	return analyzer.NewRuleAnalyzer(nil)
}

func (e *Engine) newExpander() expander.Expander {
	if e.useLLM(e.cfg.Router.Expander) {
		return expander.NewLLMExpander(e.client, e.cfg.LLM.Model, e.cfg.Search.MaxExpansions, e.logger.Named("expander"))
	}
	return expander.NewRuleExpander(e.cfg.Search.MaxExpansions, nil)
}

func (e *Engine) newReranker() reranker.Reranker {
	if e.useLLM(e.cfg.Router.Reranker) {
		return reranker.NewLLMReranker(e.client, e.cfg.LLM.Model, e.cfg.Search.RerankTopN, e.logger.Named("reranker"))
	}
	return reranker.NewKeywordReranker(e.cfg.Search.RerankTopN)
}

// PerformHybridSearch ranks chunks for query by blending vector similarity
// and BM25 with hybridRatio as the vector weight
func (e *Engine) PerformHybridSearch(ctx context.Context, query string, topK int, hybridRatio float64, filters *types.Filters) ([]types.SearchResult, error) {
	return e.searcher.PerformHybridSearch(ctx, query, topK, hybridRatio, filters)
}

// RouteQuery answers query through analysis, expansion, search and reranking
func (e *Engine) RouteQuery(ctx context.Context, query string, opts router.Options) (*types.RouteResult, error) {
	return e.router.RouteQuery(ctx, query, opts)
}

// ExtractMetadata derives structured metadata for text
func (e *Engine) ExtractMetadata(ctx context.Context, text, id string, opts metadata.Options) (*types.Metadata, error) {
	if e.extractor == nil {
		return nil, ErrExtractionUnavailable
	}
	return e.extractor.Extract(ctx, text, id, opts)
}

// InvalidateMetadata drops the cached extraction for text from both cache
// tiers. The next ExtractMetadata call for identical text calls the model.
func (e *Engine) InvalidateMetadata(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return types.ErrEmptyContent
	}
	if e.extractor != nil {
		return e.extractor.Invalidate(ctx, text)
	}
	return e.cache.Invalidate(ctx, types.Fingerprint(text))
}

// Ingest chunks and indexes docs with the configured window
func (e *Engine) Ingest(ctx context.Context, docs []chunker.Document, opts indexer.IndexOptions) (*indexer.Statistics, error) {
	return e.indexer.IndexDocuments(ctx, docs, e.chunker, opts)
}

// IngestFile loads a crawl output file and indexes its successful pages
func (e *Engine) IngestFile(ctx context.Context, path string, opts indexer.IndexOptions) (*indexer.Statistics, error) {
	docs, err := indexer.LoadCrawlFile(path)
	if err != nil {
		return nil, err
	}
	return e.Ingest(ctx, docs, opts)
}

// Remove deletes chunks from the store, the vector index and the statistics
func (e *Engine) Remove(ctx context.Context, ids ...string) (int, error) {
	return e.indexer.Remove(ctx, ids...)
}

// Sweep deletes expired metadata cache entries and returns how many were removed
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	return e.sweep.RunOnce(ctx)
}

// Scheduler returns a scheduler with the cache sweep registered on the
// configured cron spec. The caller starts and stops it.
func (e *Engine) Scheduler() (*sweeper.Scheduler, error) {
	s := sweeper.NewScheduler(e.logger.Named("scheduler"))
	if err := s.AddJob(e.sweep, e.cfg.Cache.SweepSchedule); err != nil {
		return nil, err
	}
	return s, nil
}

// Status summarizes the store, the corpus and the in-process caches
type Status struct {
	Storage            *storage.Status
	CorpusDocuments    int
	AverageChunkLength float64
	VectorBackend      string
	VectorCount        int // rows in the external index, -1 when unavailable
	EmbeddingProvider  string
	EmbeddingModel     string
	LLMConfigured      bool
	SearchCacheEntries int
	MetadataHotEntries int
	IndexingInProgress bool
	SweepRuns          int64
	SweepRemoved       int64
}

// Status reports engine health
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st, err := e.store.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	snap := e.stats.Snapshot()
	runs, removed := e.sweep.Totals()
	status := &Status{
		Storage:            st,
		CorpusDocuments:    snap.TotalDocuments,
		AverageChunkLength: snap.AverageDocumentLength,
		VectorBackend:      e.cfg.Vector.Backend,
		VectorCount:        st.EmbeddingsCount,
		EmbeddingProvider:  e.embedder.Provider(),
		EmbeddingModel:     e.embedder.Model(),
		LLMConfigured:      e.client != nil,
		SearchCacheEntries: e.searcher.CacheLen(),
		MetadataHotEntries: e.cache.HotLen(),
		IndexingInProgress: e.indexer.Busy(),
		SweepRuns:          runs,
		SweepRemoved:       removed,
	}
	if e.vectors != nil {
		if status.VectorCount, err = e.vectors.Count(ctx); err != nil {
			e.logger.Warn("pgvector count failed", zap.Error(err))
			status.VectorCount = -1
		}
	}
	return status, nil
}

// Config returns the configuration the engine was opened with
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Close releases the store, the vector index and the embedder
func (e *Engine) Close() error {
	var errs []error
	if e.embedder != nil {
		errs = append(errs, e.embedder.Close())
	}
	if e.vectors != nil {
		errs = append(errs, e.vectors.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
