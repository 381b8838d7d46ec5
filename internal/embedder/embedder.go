package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

var (
	// ErrEmptyText is returned for blank input; it matches types.ErrEmptyContent
	ErrEmptyText         = fmt.Errorf("%w: nothing to embed", types.ErrEmptyContent)
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// DefaultCacheSize is the number of vectors kept when no size is configured
const DefaultCacheSize = 10000

// Embedding is the unit-length vector of one chunk or query
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string

	// Fingerprint identifies the embedded text. It is the same key the
	// metadata cache uses, so one chunk has one identity across both.
	Fingerprint string
}

// EmbeddingRequest asks for the vector of one text
type EmbeddingRequest struct {
	Text  string
	Model string // Optional: override the provider's model
}

// BatchEmbeddingRequest asks for the vectors of several texts in one call
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse holds vectors in request order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns chunk and query text into vectors for the vector index
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

type cacheKey struct {
	fingerprint string
	model       string
}

// Cache keeps recent vectors by content fingerprint and model, so re-ingesting
// an unchanged page or repeating a query does not reach the provider. A nil
// *Cache is valid and never hits.
type Cache struct {
	vectors *lru.Cache[cacheKey, []float32]
}

// NewCache creates a cache holding up to size vectors
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	vectors, _ := lru.New[cacheKey, []float32](size)
	return &Cache{vectors: vectors}
}

// lookup returns a copy of the vector embedded for fingerprint with model
func (c *Cache) lookup(fingerprint, model string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.vectors.Get(cacheKey{fingerprint, model})
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// remember stores a copy of emb's vector under its fingerprint and model
func (c *Cache) remember(emb *Embedding) {
	if c == nil {
		return
	}
	c.vectors.Add(cacheKey{emb.Fingerprint, emb.Model}, append([]float32(nil), emb.Vector...))
}

// checkTexts rejects an empty batch or any blank text
func checkTexts(texts ...string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text %d is blank", ErrEmptyText, i)
		}
	}
	return nil
}
