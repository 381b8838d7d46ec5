package metadata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/storage"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// mockStore is a CacheStore with overridable behavior
type mockStore struct {
	getFn    func(ctx context.Context, id string) (*storage.CacheEntry, error)
	putFn    func(ctx context.Context, entry *storage.CacheEntry) error
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockStore) GetCacheEntry(ctx context.Context, id string) (*storage.CacheEntry, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) PutCacheEntry(ctx context.Context, entry *storage.CacheEntry) error {
	if m.putFn != nil {
		return m.putFn(ctx, entry)
	}
	return nil
}

func (m *mockStore) DeleteCacheEntry(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSQLiteStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleMetadata() *types.Metadata {
	return &types.Metadata{
		PrimaryCategory: "security",
		TechnicalLevel:  3,
		Summary:         "Enterprise SSO setup",
		Keywords:        []string{"sso", "saml"},
		Entities:        []types.Entity{{Name: "Okta", Type: "product"}},
	}
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newSQLiteStore(t))
	fp := types.Fingerprint("doc text")

	_, ok := cache.Get(ctx, fp)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, fp, sampleMetadata(), time.Hour))

	got, ok := cache.Get(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, sampleMetadata(), got)

	// Callers get copies
	got.Keywords[0] = "changed"
	again, ok := cache.Get(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, "sso", again.Keywords[0])
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	tests := []struct {
		name    string
		hotSize int
	}{
		{name: "hot tier", hotSize: 10},
		{name: "store only", hotSize: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			cache := NewCache(newSQLiteStore(t), WithClock(clock.Now), WithHotSize(tt.hotSize))
			fp := types.Fingerprint("expiring")

			require.NoError(t, cache.Put(ctx, fp, sampleMetadata(), time.Minute))

			clock.Advance(59 * time.Second)
			_, ok := cache.Get(ctx, fp)
			assert.True(t, ok)

			// expiresAt == now is already a miss
			clock.Advance(time.Second)
			_, ok = cache.Get(ctx, fp)
			assert.False(t, ok)
		})
	}
}

func TestCache_StoreTierRepopulatesHot(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	fp := types.Fingerprint("shared")

	writer := NewCache(store)
	require.NoError(t, writer.Put(ctx, fp, sampleMetadata(), time.Hour))

	reader := NewCache(store)
	assert.Equal(t, 0, reader.HotLen())
	_, ok := reader.Get(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, 1, reader.HotLen())
}

func TestCache_SweptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	cache := NewCache(store, WithHotSize(0))
	fp := types.Fingerprint("swept")

	require.NoError(t, cache.Put(ctx, fp, sampleMetadata(), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	n, err := store.DeleteExpiredCacheEntries(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok := cache.Get(ctx, fp)
	assert.False(t, ok)
}

func TestCache_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newSQLiteStore(t))
	fp := types.Fingerprint("overwritten")

	first := sampleMetadata()
	second := sampleMetadata()
	second.Summary = "Updated summary"

	require.NoError(t, cache.Put(ctx, fp, first, time.Hour))
	require.NoError(t, cache.Put(ctx, fp, second, time.Hour))

	got, ok := cache.Get(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, "Updated summary", got.Summary)
}

func TestCache_ConcurrentReadersNeverSeeTornValues(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil)
	fp := types.Fingerprint("contended")

	a := sampleMetadata()
	a.Summary, a.Keywords = "A", []string{"a1", "a2"}
	b := sampleMetadata()
	b.Summary, b.Keywords = "B", []string{"b1", "b2"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			meta := a
			if i%2 == 1 {
				meta = b
			}
			for j := 0; j < 100; j++ {
				_ = cache.Put(ctx, fp, meta, time.Hour)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, ok := cache.Get(ctx, fp)
				if !ok {
					continue
				}
				prefix := map[string]string{"A": "a", "B": "b"}[got.Summary]
				assert.Equal(t, prefix+"1", got.Keywords[0])
			}
		}()
	}
	wg.Wait()
}

func TestCache_PutValidation(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil)

	assert.ErrorIs(t, cache.Put(ctx, "fp", sampleMetadata(), 0), ErrInvalidTTL)
	assert.ErrorIs(t, cache.Put(ctx, "fp", nil, time.Hour), types.ErrInvalidMetadata)
	assert.ErrorIs(t, cache.Put(ctx, "fp", &types.Metadata{}, time.Hour), types.ErrInvalidMetadata)
}

func TestCache_StoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	store := &mockStore{
		putFn: func(context.Context, *storage.CacheEntry) error { return boom },
		getFn: func(context.Context, string) (*storage.CacheEntry, error) { return nil, boom },
	}
	cache := NewCache(store)

	assert.ErrorIs(t, cache.Put(ctx, "fp", sampleMetadata(), time.Hour), boom)
	_, ok := cache.Get(ctx, "fp")
	assert.False(t, ok, "store read errors are misses")
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newSQLiteStore(t))
	fp := types.Fingerprint("invalidate me")

	require.NoError(t, cache.Put(ctx, fp, sampleMetadata(), time.Hour))
	require.NoError(t, cache.Invalidate(ctx, fp))

	_, ok := cache.Get(ctx, fp)
	assert.False(t, ok)
	assert.NoError(t, cache.Invalidate(ctx, fp))
}

func TestCache_InvalidateDuringStoreReadIsNotResurrected(t *testing.T) {
	ctx := context.Background()
	fp := types.Fingerprint("racing")
	now := time.Now()
	row := &storage.CacheEntry{ID: fp, Data: *sampleMetadata(), CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(time.Hour)}

	var (
		mu      sync.Mutex
		deleted bool
		reads   int
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &mockStore{
		getFn: func(ctx context.Context, id string) (*storage.CacheEntry, error) {
			mu.Lock()
			reads++
			first := reads == 1
			gone := deleted
			mu.Unlock()
			if first {
				// the row is read before Invalidate deletes it
				close(entered)
				<-release
				return row, nil
			}
			if gone {
				return nil, storage.ErrNotFound
			}
			return row, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			mu.Lock()
			deleted = true
			mu.Unlock()
			return nil
		},
	}
	cache := NewCache(store, WithHotSize(10))

	done := make(chan bool)
	go func() {
		_, ok := cache.Get(ctx, fp)
		done <- ok
	}()

	<-entered
	require.NoError(t, cache.Invalidate(ctx, fp))
	close(release)
	assert.True(t, <-done, "the overlapping read may still observe the old row")

	assert.Zero(t, cache.HotLen())
	_, ok := cache.Get(ctx, fp)
	assert.False(t, ok)
}

func TestCache_PutDuringStoreReadKeepsNewerValue(t *testing.T) {
	ctx := context.Background()
	fp := types.Fingerprint("racing put")
	now := time.Now()
	stale := &storage.CacheEntry{ID: fp, Data: *sampleMetadata(), CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(time.Hour)}

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store := &mockStore{
		getFn: func(ctx context.Context, id string) (*storage.CacheEntry, error) {
			once.Do(func() {
				close(entered)
				<-release
			})
			return stale, nil
		},
	}
	cache := NewCache(store, WithHotSize(10))

	done := make(chan struct{})
	go func() {
		cache.Get(ctx, fp)
		close(done)
	}()

	<-entered
	newer := sampleMetadata()
	newer.Summary = "newer"
	require.NoError(t, cache.Put(ctx, fp, newer, time.Hour))
	close(release)
	<-done

	got, ok := cache.Get(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, "newer", got.Summary)
}
