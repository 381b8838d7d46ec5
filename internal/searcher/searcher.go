package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/corpus"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/embedder"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/storage"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// Retrieval paths reported in Response.DegradedPaths
const (
	PathVector  = "vector"
	PathLexical = "lexical"
)

// VectorIndex finds the stored chunks nearest to a query embedding.
// Distance is cosine distance, lower is closer.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, k int, filters *types.Filters) ([]storage.VectorResult, error)
}

// ChunkStore hydrates candidate ids into chunks. Missing ids are absent
// from the returned map.
type ChunkStore interface {
	GetChunks(ctx context.Context, ids []string) (map[string]*types.Chunk, error)
}

// LexicalScorer is the BM25 side of the ranker. *corpus.Scorer satisfies it.
type LexicalScorer interface {
	Search(queryTerms []string, limit int, filters *types.Filters) ([]corpus.Hit, error)
	ScoreDocuments(queryTerms []string, ids []string) (map[string]float64, error)
}

// StoreIndex serves vector queries from the document store itself
func StoreIndex(store storage.Storage) VectorIndex {
	return storeIndex{store: store}
}

type storeIndex struct {
	store storage.Storage
}

func (s storeIndex) Search(ctx context.Context, vector []float32, k int, filters *types.Filters) ([]storage.VectorResult, error) {
	return s.store.SearchVector(ctx, vector, k, filters)
}

// Config holds ranking tunables
type Config struct {
	Oversample  int // candidates fetched per path = Oversample * TopK
	DefaultTopK int
	MaxTopK     int
	CacheSize   int           // response cache entries, 0 disables
	CacheTTL    time.Duration // default TTL for cached responses

	// CacheResponses makes PerformHybridSearch serve repeated requests
	// from the response cache
	CacheResponses bool
}

// DefaultConfig returns the ranking defaults
func DefaultConfig() Config {
	return Config{
		Oversample:  4,
		DefaultTopK: 10,
		MaxTopK:     100,
		CacheSize:   1000,
		CacheTTL:    5 * time.Minute,
	}
}

// Request contains parameters for a ranking operation
type Request struct {
	Query       string
	TopK        int
	HybridRatio float64 // weight of the vector family, 1 = vector only, 0 = lexical only
	Filters     *types.Filters
	UseCache    bool
}

// Response contains ranked results and diagnostics
type Response struct {
	Results           []types.SearchResult
	HybridRatio       float64 // ratio actually applied after any degradation
	Degraded          bool
	DegradedPaths     []string
	VectorCandidates  int
	LexicalCandidates int
	PoolSize          int
	Duration          time.Duration
	CacheHit          bool
}

// cacheEntry represents a cached response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher fuses dense-vector and BM25 retrieval into one ranked list
type Searcher struct {
	store    ChunkStore
	index    VectorIndex
	embedder embedder.Embedder
	lexical  LexicalScorer
	cfg      Config
	logger   *zap.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher. A nil lexical scorer makes every
// request fall back to vector-only ranking.
func NewSearcher(store ChunkStore, index VectorIndex, emb embedder.Embedder, lexical LexicalScorer, cfg Config, logger *zap.Logger) *Searcher {
	defaults := DefaultConfig()
	if cfg.Oversample <= 0 {
		cfg.Oversample = defaults.Oversample
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = defaults.DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = defaults.MaxTopK
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Searcher{
		store:    store,
		index:    index,
		embedder: emb,
		lexical:  lexical,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
		if err != nil {
			// only fails for non-positive sizes
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		s.cache = cache
	}
	return s
}

// PerformHybridSearch ranks chunks for query and returns the top topK results
func (s *Searcher) PerformHybridSearch(ctx context.Context, query string, topK int, hybridRatio float64, filters *types.Filters) ([]types.SearchResult, error) {
	resp, err := s.Rank(ctx, Request{
		Query:       query,
		TopK:        topK,
		HybridRatio: hybridRatio,
		Filters:     filters,
		UseCache:    s.cfg.CacheResponses,
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Rank runs both retrieval paths, fuses their normalized scores and returns
// the top results. A failing path degrades the response to the other one.
func (s *Searcher) Rank(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached, ok := s.checkCache(req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	response, err := s.hybridSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	response.Duration = time.Since(startTime)

	// degraded responses are not cached so a recovered path is used next time
	if req.UseCache && !response.Degraded && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// vectorOutcome holds results from the vector path
type vectorOutcome struct {
	hits []storage.VectorResult
	err  error
}

// lexicalOutcome holds results from the lexical path
type lexicalOutcome struct {
	hits []corpus.Hit
	err  error
}

// runVectorSearch executes the vector path in a goroutine
func (s *Searcher) runVectorSearch(ctx context.Context, query string, limit int, filters *types.Filters, resultChan chan<- vectorOutcome) {
	res := s.vectorSearch(ctx, query, limit, filters)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// runLexicalSearch executes the lexical path in a goroutine
func (s *Searcher) runLexicalSearch(ctx context.Context, terms []string, limit int, filters *types.Filters, resultChan chan<- lexicalOutcome) {
	res := s.lexicalSearch(terms, limit, filters)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

func (s *Searcher) vectorSearch(ctx context.Context, query string, limit int, filters *types.Filters) vectorOutcome {
	if s.embedder == nil || s.index == nil {
		return vectorOutcome{err: fmt.Errorf("%w: vector index not configured", types.ErrCollaboratorUnavailable)}
	}
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return vectorOutcome{err: fmt.Errorf("failed to generate query embedding: %w", err)}
	}
	hits, err := s.index.Search(ctx, embedding.Vector, limit, filters)
	if err != nil {
		return vectorOutcome{err: fmt.Errorf("vector search failed: %w", err)}
	}
	return vectorOutcome{hits: hits}
}

func (s *Searcher) lexicalSearch(terms []string, limit int, filters *types.Filters) lexicalOutcome {
	if s.lexical == nil {
		return lexicalOutcome{err: fmt.Errorf("%w: lexical scorer not configured", types.ErrCorruptStatistics)}
	}
	hits, err := s.lexical.Search(terms, limit, filters)
	if err != nil {
		return lexicalOutcome{err: fmt.Errorf("lexical search failed: %w", err)}
	}
	return lexicalOutcome{hits: hits}
}

// hybridSearch gathers candidates from both paths and fuses them
func (s *Searcher) hybridSearch(ctx context.Context, req Request) (*Response, error) {
	ratio := req.HybridRatio
	limit := s.cfg.Oversample * req.TopK
	terms := corpus.Tokenize(req.Query)

	runVector := ratio > 0
	runLexical := ratio < 1

	vectorChan := make(chan vectorOutcome, 1)
	lexicalChan := make(chan lexicalOutcome, 1)
	if runVector {
		go s.runVectorSearch(ctx, req.Query, limit, req.Filters, vectorChan)
	}
	if runLexical {
		go s.runLexicalSearch(ctx, terms, limit, req.Filters, lexicalChan)
	}

	// Wait for the requested paths
	var vectorRes vectorOutcome
	var lexicalRes lexicalOutcome
	vectorDone, lexicalDone := !runVector, !runLexical
	for !vectorDone || !lexicalDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case lexicalRes = <-lexicalChan:
			lexicalDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	response := &Response{}

	// A single-path request whose path failed falls back to the other path
	if runVector && vectorRes.err != nil && !runLexical {
		lexicalRes = s.lexicalSearch(terms, limit, req.Filters)
		runLexical = true
	}
	if runLexical && lexicalRes.err != nil && !runVector {
		vectorRes = s.vectorSearch(ctx, req.Query, limit, req.Filters)
		runVector = true
	}

	vectorOK := runVector && vectorRes.err == nil
	lexicalOK := runLexical && lexicalRes.err == nil

	if !vectorOK && !lexicalOK {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: both searches failed: vector=%v, lexical=%v",
			types.ErrCollaboratorUnavailable, vectorRes.err, lexicalRes.err)
	}
	if runVector && !vectorOK {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.logger.Warn("vector retrieval failed, ranking lexically", zap.Error(vectorRes.err))
		response.Degraded = true
		response.DegradedPaths = append(response.DegradedPaths, PathVector)
	}
	if runLexical && !lexicalOK {
		s.logger.Warn("lexical retrieval failed, ranking by vector", zap.Error(lexicalRes.err))
		response.Degraded = true
		response.DegradedPaths = append(response.DegradedPaths, PathLexical)
	}

	switch {
	case !vectorOK:
		ratio = 0
	case !lexicalOK:
		ratio = 1
	}

	response.VectorCandidates = len(vectorRes.hits)
	response.LexicalCandidates = len(lexicalRes.hits)

	pool, err := s.hydrate(ctx, vectorRes.hits, lexicalRes.hits, req.Filters)
	if err != nil {
		return nil, err
	}
	response.PoolSize = len(pool)

	var bm25Raw map[string]float64
	if lexicalOK && len(pool) > 0 {
		ids := make([]string, len(pool))
		for i, c := range pool {
			ids[i] = c.ID
		}
		bm25Raw, err = s.lexical.ScoreDocuments(terms, ids)
		if err != nil {
			if !vectorOK {
				return nil, fmt.Errorf("%w: lexical scoring failed: %v", types.ErrCollaboratorUnavailable, err)
			}
			s.logger.Warn("lexical scoring failed, ranking by vector", zap.Error(err))
			lexicalOK = false
			ratio = 1
			response.Degraded = true
			response.DegradedPaths = append(response.DegradedPaths, PathLexical)
		}
	}

	var vecNorm, bm25Norm map[string]float64
	if vectorOK {
		vecNorm = normalize(vectorSimilarities(pool, vectorRes.hits))
	}
	if lexicalOK {
		bm25Norm = normalize(poolScores(pool, bm25Raw))
	}

	results := make([]types.SearchResult, 0, len(pool))
	for _, chunk := range pool {
		result := types.NewSearchResult(*chunk, 0)
		var vec, lex float64
		if vectorOK {
			vec = vecNorm[chunk.ID]
			result = result.WithVectorScore(vec)
		}
		if lexicalOK {
			lex = bm25Norm[chunk.ID]
			result = result.WithBM25Score(lex)
		}
		result.Score = ratio*vec + (1-ratio)*lex
		results = append(results, result)
	}

	SortResults(results)
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}

	response.Results = results
	response.HybridRatio = ratio
	return response, nil
}

// hydrate unions both candidate lists, loads the chunks and drops any
// that no longer exist or fail the filters
func (s *Searcher) hydrate(ctx context.Context, vectorHits []storage.VectorResult, lexicalHits []corpus.Hit, filters *types.Filters) ([]*types.Chunk, error) {
	seen := make(map[string]struct{}, len(vectorHits)+len(lexicalHits))
	ids := make([]string, 0, len(vectorHits)+len(lexicalHits))
	for _, h := range vectorHits {
		if _, ok := seen[h.ChunkID]; !ok {
			seen[h.ChunkID] = struct{}{}
			ids = append(ids, h.ChunkID)
		}
	}
	for _, h := range lexicalHits {
		if _, ok := seen[h.ID]; !ok {
			seen[h.ID] = struct{}{}
			ids = append(ids, h.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: chunk store not configured", types.ErrCollaboratorUnavailable)
	}

	chunks, err := s.store.GetChunks(ctx, ids)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: failed to load candidates: %w", types.ErrCollaboratorUnavailable, err)
	}

	pool := make([]*types.Chunk, 0, len(ids))
	for _, id := range ids {
		chunk, ok := chunks[id]
		if !ok || chunk == nil {
			continue
		}
		if !filters.Match(chunk) {
			continue
		}
		pool = append(pool, chunk)
	}
	return pool, nil
}

// vectorSimilarities converts distances to similarities. Pool members the
// index did not return get the lowest similarity in the pool.
func vectorSimilarities(pool []*types.Chunk, hits []storage.VectorResult) map[string]float64 {
	returned := make(map[string]float64, len(hits))
	for _, h := range hits {
		returned[h.ChunkID] = 1 - h.Distance
	}

	floor := math.Inf(1)
	for _, c := range pool {
		if sim, ok := returned[c.ID]; ok && sim < floor {
			floor = sim
		}
	}
	if math.IsInf(floor, 1) {
		floor = 0
	}

	sims := make(map[string]float64, len(pool))
	for _, c := range pool {
		if sim, ok := returned[c.ID]; ok {
			sims[c.ID] = sim
		} else {
			sims[c.ID] = floor
		}
	}
	return sims
}

func poolScores(pool []*types.Chunk, scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(pool))
	for _, c := range pool {
		out[c.ID] = scores[c.ID]
	}
	return out
}

// normalize min-max scales values into [0, 1]. A zero range maps every
// value to 0.5.
func normalize(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	span := hi - lo
	for id, v := range values {
		if span == 0 {
			out[id] = 0.5
			continue
		}
		out[id] = (v - lo) / span
	}
	return out
}

// SortResults orders results by score descending, then vector score
// descending, then id ascending
func SortResults(results []types.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		vi, _ := results[i].VectorScore()
		vj, _ := results[j].VectorScore()
		if vi != vj {
			return vi > vj
		}
		return results[i].Item.ID < results[j].Item.ID
	})
}

// validateRequest ensures the request is valid and applies defaults
func (s *Searcher) validateRequest(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrInvalidQuery)
	}

	if math.IsNaN(req.HybridRatio) || req.HybridRatio < 0 || req.HybridRatio > 1 {
		return fmt.Errorf("%w: hybridRatio %v outside [0, 1]", types.ErrInvalidQuery, req.HybridRatio)
	}

	if req.TopK < 0 {
		return fmt.Errorf("%w: topK cannot be negative", types.ErrInvalidQuery)
	}
	if req.TopK == 0 {
		req.TopK = s.cfg.DefaultTopK
	}
	if req.TopK > s.cfg.MaxTopK {
		req.TopK = s.cfg.MaxTopK
	}

	if err := req.Filters.Validate(); err != nil {
		if errors.Is(err, types.ErrInvalidQuery) {
			return err
		}
		return fmt.Errorf("%w: %v", types.ErrInvalidQuery, err)
	}

	return nil
}

// checkCache looks up a cached response
func (s *Searcher) checkCache(req Request) (*Response, bool) {
	if s.cache == nil {
		return nil, false
	}
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, false
	}

	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()

	return response, true
}

// storeInCache saves a response copy
func (s *Searcher) storeInCache(req Request, response *Response) {
	if s.cache == nil {
		return
	}
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Called after the corpus changes.
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}

	dst := *src
	dst.DegradedPaths = append([]string(nil), src.DegradedPaths...)
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, result := range src.Results {
		dst.Results[i] = result
		dst.Results[i].Item.Metadata = result.Item.Metadata.Clone()
		if result.Item.Embedding != nil {
			dst.Results[i].Item.Embedding = append([]float32(nil), result.Item.Embedding...)
		}
	}
	return &dst
}

// computeQueryHash computes a unique hash for a request
func computeQueryHash(req Request) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	fmt.Fprintf(&data, "|%d|%.6f", req.TopK, req.HybridRatio)

	if f := req.Filters; !f.IsEmpty() {
		data.WriteString("|filters:")
		data.WriteString(strings.ToLower(strings.Join(f.Categories, ",")))
		fmt.Fprintf(&data, "|%d-%d|", f.MinTechnicalLevel, f.MaxTechnicalLevel)
		data.WriteString(strings.Join(f.Sources, ","))
		if f.CreatedAfter != nil {
			fmt.Fprintf(&data, "|after:%d", f.CreatedAfter.UnixNano())
		}
		if f.CreatedBefore != nil {
			fmt.Fprintf(&data, "|before:%d", f.CreatedBefore.UnixNano())
		}
	}

	return sha256.Sum256([]byte(data.String()))
}
