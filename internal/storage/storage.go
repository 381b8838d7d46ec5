package storage

import (
	"context"
	"time"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// Storage defines the interface for persisting chunks, embeddings, cached
// metadata and ingest progress
type Storage interface {
	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *types.Chunk) error
	GetChunk(ctx context.Context, id string) (*types.Chunk, error)
	GetChunks(ctx context.Context, ids []string) (map[string]*types.Chunk, error)
	UpdateChunkMetadata(ctx context.Context, id string, meta *types.Metadata) error
	DeleteChunk(ctx context.Context, id string) error
	ForEachChunk(ctx context.Context, fn func(*types.Chunk) error) error

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int, filters *types.Filters) ([]VectorResult, error)

	// Metadata cache operations
	GetCacheEntry(ctx context.Context, id string) (*CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *CacheEntry) error
	DeleteCacheEntry(ctx context.Context, id string) error
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)

	// Ingest cursor operations
	GetCursor(ctx context.Context, name string) (*Cursor, error)
	SaveCursor(ctx context.Context, cursor *Cursor) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Embedding is a stored chunk vector
type Embedding struct {
	ChunkID   string
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// VectorResult is a nearest-neighbour match. Distance is cosine distance:
// 0 for identical direction, lower is closer.
type VectorResult struct {
	ChunkID  string
	Distance float64
}

// CacheEntry is a persisted metadata extraction keyed by content fingerprint
type CacheEntry struct {
	ID        string
	Data      types.Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry must be treated as a miss at now
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Cursor records the last item a named ingest run finished
type Cursor struct {
	Name      string
	LastID    string
	Processed int64
	UpdatedAt time.Time
}

// Status contains statistics about the store
type Status struct {
	ChunksCount         int
	EmbeddingsCount     int
	CacheEntries        int
	ExpiredCacheEntries int
	Categories          map[string]int
	IndexSizeMB         float64
	SchemaVersion       string
	Health              HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	MetadataAvailable   bool
}
