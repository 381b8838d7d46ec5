// Package sweeper removes expired metadata cache entries, on demand or on a
// cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Tramona1/sales-chat-openai-rag-full-sub005/internal/logging"
)

// Store deletes cache entries whose expiry is at or before now
type Store interface {
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)
}

// Job is a named unit of scheduled work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CacheSweep deletes expired metadata cache entries
type CacheSweep struct {
	store   Store
	now     func() time.Time
	removed atomic.Int64
	runs    atomic.Int64
}

// NewCacheSweep creates the sweep job. now may be nil.
func NewCacheSweep(store Store, now func() time.Time) *CacheSweep {
	if now == nil {
		now = time.Now
	}
	return &CacheSweep{store: store, now: now}
}

func (s *CacheSweep) Name() string {
	return "metadata-cache-sweep"
}

// Run performs one sweep
func (s *CacheSweep) Run(ctx context.Context) error {
	_, err := s.RunOnce(ctx)
	return err
}

// RunOnce performs one sweep and returns how many entries were removed
func (s *CacheSweep) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredCacheEntries(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired cache entries: %w", err)
	}
	s.runs.Add(1)
	s.removed.Add(n)
	logging.FromContext(ctx).Info("expired cache entries swept", zap.Int64("removed", n))
	return n, nil
}

// Totals returns the number of completed sweeps and entries removed so far
func (s *CacheSweep) Totals() (runs, removed int64) {
	return s.runs.Load(), s.removed.Load()
}

// Scheduler runs jobs on five-field cron specs
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
	logger  *zap.Logger
}

// NewScheduler creates a stopped scheduler
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
		logger:  logger,
	}
}

// AddJob schedules job under spec
func (s *Scheduler) AddJob(job Job, spec string) error {
	logger := s.logger.With(zap.String("job", job.Name()), zap.String("spec", spec))
	id, err := s.cron.AddFunc(spec, s.wrap(job, spec))
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	s.entries[job.Name()] = id
	logger.Info("job scheduled")
	return nil
}

// Next returns the next activation time of the named job
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start runs the scheduler in the background. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = logging.WithContext(ctx, s.logger)
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// wrap skips an activation while the previous one is still running
func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		logger := s.logger.With(zap.String("job", job.Name()), zap.String("spec", spec))
		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		start := time.Now()
		if err := job.Run(s.ctx); err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		logger.Debug("job finished", zap.Duration("duration", time.Since(start)))
	}
}
