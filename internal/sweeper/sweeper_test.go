package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/storage"
	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/pkg/types"
)

// mockStore implements Store for testing
type mockStore struct {
	deleteFunc func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockStore) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	return m.deleteFunc(ctx, now)
}

// blockingJob implements Job and blocks until released
type blockingJob struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	j.started <- struct{}{}
	<-j.release
	return nil
}

func TestCacheSweep_RemovesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	meta := types.Metadata{PrimaryCategory: "pricing", TechnicalLevel: 1}
	for _, e := range []struct {
		id  string
		ttl time.Duration
	}{
		{"expired-1", time.Hour},
		{"expired-2", 2 * time.Hour},
		{"fresh", 48 * time.Hour},
	} {
		require.NoError(t, store.PutCacheEntry(ctx, &storage.CacheEntry{
			ID:        e.id,
			Data:      meta,
			CreatedAt: base,
			ExpiresAt: base.Add(e.ttl),
		}))
	}

	sweep := NewCacheSweep(store, func() time.Time { return base.Add(2 * time.Hour) })
	n, err := sweep.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = store.GetCacheEntry(ctx, "expired-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	fresh, err := store.GetCacheEntry(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "pricing", fresh.Data.PrimaryCategory)

	n, err = sweep.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	runs, removed := sweep.Totals()
	assert.EqualValues(t, 2, runs)
	assert.EqualValues(t, 2, removed)
}

func TestCacheSweep_StoreError(t *testing.T) {
	boom := errors.New("disk I/O error")
	sweep := NewCacheSweep(&mockStore{
		deleteFunc: func(ctx context.Context, now time.Time) (int64, error) { return 0, boom },
	}, nil)

	err := sweep.Run(context.Background())
	assert.ErrorIs(t, err, boom)

	runs, _ := sweep.Totals()
	assert.Zero(t, runs)
}

func TestCacheSweep_UsesClock(t *testing.T) {
	at := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	var got time.Time
	sweep := NewCacheSweep(&mockStore{
		deleteFunc: func(ctx context.Context, now time.Time) (int64, error) {
			got = now
			return 0, nil
		},
	}, func() time.Time { return at })

	require.NoError(t, sweep.Run(context.Background()))
	assert.Equal(t, at, got)
	assert.Equal(t, "metadata-cache-sweep", sweep.Name())
}

func TestScheduler_AddJob(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "every fifteen minutes", spec: "*/15 * * * *"},
		{name: "hourly", spec: "0 * * * *"},
		{name: "seconds field rejected", spec: "0 */15 * * * *", wantErr: true},
		{name: "garbage", spec: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(nil)
			sweep := NewCacheSweep(&mockStore{}, nil)

			err := s.AddJob(sweep, tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				_, ok := s.Next(sweep.Name())
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)

			s.Start(context.Background())
			defer s.Stop()

			next, ok := s.Next(sweep.Name())
			require.True(t, ok)
			assert.True(t, next.After(time.Now()))
		})
	}
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(nil)
	job := &blockingJob{started: make(chan struct{}, 1), release: make(chan struct{})}
	run := s.wrap(job, "* * * * *")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		run()
	}()
	<-job.started

	// a second activation while the first is running returns immediately
	run()
	assert.EqualValues(t, 1, job.runs.Load())

	close(job.release)
	wg.Wait()

	go run()
	<-job.started
	assert.EqualValues(t, 2, job.runs.Load())
}
