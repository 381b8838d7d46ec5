package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/chunker"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/corpus"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/embedder"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/metadata"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/storage"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// ErrIndexingInProgress is returned when another ingest run holds the lock
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Extractor produces metadata for chunk text. *metadata.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, text, id string, opts metadata.Options) (*types.Metadata, error)
}

// VectorSink mirrors chunk vectors into an external index
type VectorSink interface {
	Upsert(ctx context.Context, chunk *types.Chunk, vector []float32) error
	Delete(ctx context.Context, id string) error
}

// CacheInvalidator drops cached search responses after the corpus changes
type CacheInvalidator interface {
	InvalidateCache()
}

// Indexer coordinates the ingest pipeline: chunk -> extract -> embed -> store
type Indexer struct {
	store     storage.Storage
	embedder  embedder.Embedder
	corpus    *corpus.Statistics
	extractor Extractor
	sink      VectorSink
	caches    []CacheInvalidator
	limiter   *rate.Limiter
	lock      IndexLock
	cfg       Config
	logger    *zap.Logger
}

// Config contains configuration for the indexer
type Config struct {
	Workers           int           // Concurrent chunk workers (default: 4)
	BatchSize         int           // Pages committed per transaction (default: 20)
	BatchDelay        time.Duration // Pause between batches
	RequestsPerSecond float64       // Shared collaborator budget; <= 0 is unlimited
	Burst             int
}

// DefaultConfig returns the indexer defaults
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		BatchSize:         20,
		BatchDelay:        time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// IndexOptions control one ingest run
type IndexOptions struct {
	Cursor string // Names the persisted cursor; empty disables resume
	Resume bool   // Skip pages at or before the saved cursor
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	PagesProcessed     int
	PagesSkipped       int
	ChunksIndexed      int
	ChunksFailed       int
	MetadataFailures   int
	TokensEstimated    int
	Duration           time.Duration
	ErrorMessages      []string
	ResumedAfter       string
	CursorHeldAt       string // first page with a failed chunk; the cursor stays before it
	CorpusDocuments    int
	CacheInvalidations int
}

// Option configures optional collaborators
type Option func(*Indexer)

// WithExtractor enables metadata extraction for every chunk
func WithExtractor(e Extractor) Option {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithVectorSink mirrors vectors into an external index
func WithVectorSink(s VectorSink) Option {
	return func(idx *Indexer) { idx.sink = s }
}

// WithCacheInvalidator registers a cache to purge after each committed batch
func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(idx *Indexer) { idx.caches = append(idx.caches, c) }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = logger }
}

// New creates a new Indexer instance
func New(store storage.Storage, emb embedder.Embedder, stats *corpus.Statistics, cfg Config, opts ...Option) *Indexer {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	idx := &Indexer{
		store:    store,
		embedder: emb,
		corpus:   stats,
		limiter:  rate.NewLimiter(limit, burst),
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = zap.NewNop()
	}
	return idx
}

// prepared is a chunk ready to be written
type prepared struct {
	chunk     *types.Chunk
	embedding *embedder.Embedding
	metaErr   error
}

// IndexDocuments chunks and indexes docs. Pages are processed in URL order
// and committed in batches; with a named cursor a later run can resume after
// the last committed batch. Per-chunk failures are counted and reported in
// the returned statistics rather than aborting the run. The cursor never
// moves past a page with a failed chunk, so a resumed run retries it.
func (idx *Indexer) IndexDocuments(ctx context.Context, docs []chunker.Document, splitter *chunker.Chunker, opts IndexOptions) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if splitter == nil {
		splitter = chunker.New(chunker.DefaultWindowWords, chunker.DefaultOverlapWords)
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	docs = append([]chunker.Document(nil), docs...)
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })

	cursor, err := idx.loadCursor(ctx, opts)
	if err != nil {
		return nil, err
	}
	if cursor.LastID != "" {
		stats.ResumedAfter = cursor.LastID
		n := sort.Search(len(docs), func(i int) bool { return docs[i].URL > cursor.LastID })
		stats.PagesSkipped = n
		docs = docs[n:]
	}

	for i := 0; i < len(docs); i += idx.cfg.BatchSize {
		if i > 0 && idx.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(idx.cfg.BatchDelay):
			}
		}

		end := min(i+idx.cfg.BatchSize, len(docs))
		batch := docs[i:end]

		if err := idx.indexBatch(ctx, batch, splitter, opts, cursor, stats); err != nil {
			stats.Duration = time.Since(startTime)
			return stats, err
		}

		idx.logger.Info("ingest batch committed",
			zap.Int("pages", stats.PagesProcessed),
			zap.Int("remaining", len(docs)-end),
			zap.Int("chunks", stats.ChunksIndexed),
			zap.Int("failed", stats.ChunksFailed))
	}

	stats.CorpusDocuments = idx.corpus.TotalDocuments()
	stats.Duration = time.Since(startTime)
	return stats, nil
}

func (idx *Indexer) loadCursor(ctx context.Context, opts IndexOptions) (*storage.Cursor, error) {
	cursor := &storage.Cursor{Name: opts.Cursor}
	if opts.Cursor == "" || !opts.Resume {
		return cursor, nil
	}
	saved, err := idx.store.GetCursor(ctx, opts.Cursor)
	if errors.Is(err, storage.ErrNotFound) {
		return cursor, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor %q: %w", opts.Cursor, err)
	}
	return saved, nil
}

// indexBatch prepares every chunk of batch concurrently, then writes the
// survivors and the advanced cursor in one transaction
func (idx *Indexer) indexBatch(ctx context.Context, batch []chunker.Document, splitter *chunker.Chunker,
	opts IndexOptions, cursor *storage.Cursor, stats *Statistics) error {

	var chunks []*types.Chunk
	for _, doc := range batch {
		chunks = append(chunks, splitter.Split(doc)...)
	}

	var (
		ready       = make([]*prepared, len(chunks))
		failed      atomic.Int32
		metaFailed  atomic.Int32
		failedPages = make(map[string]struct{})
		mu          sync.Mutex // Protect stats.ErrorMessages and failedPages
		recordError = func(id string, err error) {
			mu.Lock()
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", id, err))
			mu.Unlock()
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := idx.limiter.Wait(gctx); err != nil {
				return err
			}
			p, err := idx.prepareChunk(gctx, chunk)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err != nil {
				failed.Add(1)
				recordError(chunk.ID, err)
				mu.Lock()
				failedPages[chunk.SourceURL] = struct{}{}
				mu.Unlock()
				return nil
			}
			if p.metaErr != nil {
				metaFailed.Add(1)
				idx.logger.Warn("metadata extraction failed", zap.String("chunk_id", chunk.ID), zap.Error(p.metaErr))
			}
			ready[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	done := batch
	if stats.CursorHeldAt != "" {
		done = nil
	}
	for i, doc := range done {
		if _, bad := failedPages[doc.URL]; bad {
			done = batch[:i]
			stats.CursorHeldAt = doc.URL
			break
		}
	}

	written, err := idx.commitBatch(ctx, ready, done, opts, cursor)
	if err != nil {
		return err
	}

	for _, p := range written {
		if idx.sink != nil {
			if err := idx.sink.Upsert(ctx, p.chunk, p.embedding.Vector); err != nil {
				idx.logger.Warn("vector sink upsert failed", zap.String("chunk_id", p.chunk.ID), zap.Error(err))
				recordError(p.chunk.ID, err)
			}
		}
		if err := idx.corpus.RecordDocument(p.chunk); err != nil {
			return fmt.Errorf("failed to record %s in corpus statistics: %w", p.chunk.ID, err)
		}
		stats.TokensEstimated += chunker.EstimateTokenCount(p.chunk.Text)
	}
	if len(written) > 0 {
		idx.invalidate(stats)
	}

	stats.PagesProcessed += len(batch)
	stats.ChunksIndexed += len(written)
	stats.ChunksFailed += int(failed.Load())
	stats.MetadataFailures += int(metaFailed.Load())
	return nil
}

// prepareChunk extracts metadata and embeds one chunk. Extraction failure
// leaves the chunk without metadata; embedding failure rejects it.
func (idx *Indexer) prepareChunk(ctx context.Context, chunk *types.Chunk) (*prepared, error) {
	p := &prepared{chunk: chunk}
	if idx.extractor != nil {
		meta, err := idx.extractor.Extract(ctx, chunk.Text, chunk.ID, metadata.Options{UseCaching: true})
		if err != nil {
			p.metaErr = err
		} else {
			chunk.Metadata = meta
		}
	}

	emb, err := idx.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: chunk.Text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunk: %w", err)
	}
	p.embedding = emb
	return p, nil
}

// commitBatch writes ready chunks and moves the cursor to the last of done
func (idx *Indexer) commitBatch(ctx context.Context, ready []*prepared, done []chunker.Document,
	opts IndexOptions, cursor *storage.Cursor) ([]*prepared, error) {

	tx, err := idx.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	written := make([]*prepared, 0, len(ready))
	for _, p := range ready {
		if p == nil {
			continue
		}
		if err := tx.UpsertChunk(ctx, p.chunk); err != nil {
			return nil, fmt.Errorf("failed to store chunk: %w", err)
		}
		if err := tx.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID:   p.chunk.ID,
			Vector:    p.embedding.Vector,
			Dimension: p.embedding.Dimension,
			Provider:  p.embedding.Provider,
			Model:     p.embedding.Model,
		}); err != nil {
			return nil, fmt.Errorf("failed to store embedding: %w", err)
		}
		written = append(written, p)
	}

	if opts.Cursor != "" && len(done) > 0 {
		cursor.LastID = done[len(done)-1].URL
		cursor.Processed += int64(len(done))
		cursor.UpdatedAt = time.Now()
		if err := tx.SaveCursor(ctx, cursor); err != nil {
			return nil, fmt.Errorf("failed to save cursor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return written, nil
}

func (idx *Indexer) invalidate(stats *Statistics) {
	for _, c := range idx.caches {
		c.InvalidateCache()
		stats.CacheInvalidations++
	}
}

// Remove deletes chunks from the store, the vector sink and the corpus
// statistics. Unknown ids are skipped. It returns how many chunks existed.
func (idx *Indexer) Remove(ctx context.Context, ids ...string) (int, error) {
	removed := 0
	for _, id := range ids {
		err := idx.store.DeleteChunk(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			idx.corpus.RemoveDocument(id)
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to delete chunk %s: %w", id, err)
		}
		if idx.sink != nil {
			if err := idx.sink.Delete(ctx, id); err != nil {
				return removed, fmt.Errorf("failed to delete vector for %s: %w", id, err)
			}
		}
		idx.corpus.RemoveDocument(id)
		removed++
	}
	if removed > 0 {
		for _, c := range idx.caches {
			c.InvalidateCache()
		}
	}
	return removed, nil
}

// Busy reports whether an ingest run is in progress
func (idx *Indexer) Busy() bool {
	return idx.lock.Held()
}

// Rebuild resets the corpus statistics and records every stored chunk
func (idx *Indexer) Rebuild(ctx context.Context) (int, error) {
	idx.corpus.Reset()
	n := 0
	err := idx.store.ForEachChunk(ctx, func(chunk *types.Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := idx.corpus.RecordDocument(chunk); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("failed to rebuild corpus statistics: %w", err)
	}
	for _, c := range idx.caches {
		c.InvalidateCache()
	}
	idx.logger.Info("corpus statistics rebuilt", zap.Int("documents", n))
	return n, nil
}
