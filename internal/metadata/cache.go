package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/storage"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// DefaultTTL is how long an extraction stays valid
const DefaultTTL = 24 * time.Hour

// ErrInvalidTTL is returned by Put for a non-positive ttl
var ErrInvalidTTL = errors.New("cache ttl must be positive")

// CacheStore is the persistent tier of the cache. storage.Storage satisfies it.
type CacheStore interface {
	GetCacheEntry(ctx context.Context, id string) (*storage.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *storage.CacheEntry) error
	DeleteCacheEntry(ctx context.Context, id string) error
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithHotSize sets the in-process LRU capacity. Zero disables the hot tier.
func WithHotSize(size int) CacheOption {
	return func(c *Cache) { c.hotSize = size }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// Cache maps content fingerprints to extracted metadata with an expiry.
// An in-process LRU sits in front of the persistent store.
type Cache struct {
	store   CacheStore
	hot     *lru.Cache[string, storage.CacheEntry]
	hotSize int
	now     func() time.Time
	logger  *zap.Logger

	// writeMu orders writers so both tiers agree on the last writer
	writeMu sync.Mutex
	// gen counts writes; a store read only repopulates the hot tier when no
	// Put or Invalidate landed while it was in flight
	gen atomic.Uint64
}

// NewCache creates a cache. store may be nil for a memory-only cache.
func NewCache(store CacheStore, opts ...CacheOption) *Cache {
	c := &Cache{
		store:   store,
		hotSize: 1000,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hotSize > 0 {
		c.hot, _ = lru.New[string, storage.CacheEntry](c.hotSize)
	}
	return c
}

// Get returns a copy of the live metadata for fingerprint. Expired and
// missing entries report a miss; store errors are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*types.Metadata, bool) {
	now := c.now()

	if c.hot != nil {
		if entry, ok := c.hot.Get(fingerprint); ok {
			if !entry.Expired(now) {
				return entry.Data.Clone(), true
			}
			c.hot.Remove(fingerprint)
		}
	}

	if c.store == nil {
		return nil, false
	}

	readGen := c.gen.Load()
	entry, err := c.store.GetCacheEntry(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("metadata cache read failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		}
		return nil, false
	}
	if entry.Expired(now) {
		return nil, false
	}

	if c.hot != nil {
		c.writeMu.Lock()
		if c.gen.Load() == readGen {
			c.hot.ContainsOrAdd(fingerprint, cloneEntry(entry))
		}
		c.writeMu.Unlock()
	}
	return entry.Data.Clone(), true
}

// Put stores meta under fingerprint for ttl. Overwrites replace the value and
// expiry; the last writer wins in both tiers.
func (c *Cache) Put(ctx context.Context, fingerprint string, meta *types.Metadata, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if meta == nil {
		return fmt.Errorf("%w: nil metadata", types.ErrInvalidMetadata)
	}
	if err := meta.Validate(); err != nil {
		return err
	}

	now := c.now()
	entry := storage.CacheEntry{
		ID:        fingerprint,
		Data:      *meta.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.gen.Add(1)

	if c.store != nil {
		stored := cloneEntry(&entry)
		if err := c.store.PutCacheEntry(ctx, &stored); err != nil {
			if c.hot != nil {
				c.hot.Remove(fingerprint)
			}
			return fmt.Errorf("store metadata cache entry: %w", err)
		}
	}
	if c.hot != nil {
		c.hot.Add(fingerprint, entry)
	}
	return nil
}

// Invalidate drops fingerprint from both tiers
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.gen.Add(1)

	if c.hot != nil {
		c.hot.Remove(fingerprint)
	}
	if c.store == nil {
		return nil
	}
	if err := c.store.DeleteCacheEntry(ctx, fingerprint); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// HotLen returns the number of entries in the in-process tier
func (c *Cache) HotLen() int {
	if c.hot == nil {
		return 0
	}
	return c.hot.Len()
}

func cloneEntry(e *storage.CacheEntry) storage.CacheEntry {
	clone := *e
	clone.Data = *e.Data.Clone()
	return clone
}
