// Package retry runs calls to flaky collaborators with exponential backoff.
package retry

import (
	"context"
	"time"
)

// Default backoff settings
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultMultiplier  = 2.0
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Initial delay between attempts
	MaxDelay    time.Duration // Maximum delay between attempts
	Multiplier  float64       // Exponential backoff multiplier
}

// DefaultConfig returns sensible defaults for API retry
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// Retryable reports whether err is worth another attempt
type Retryable func(err error) bool

// Always retries every error
func Always(error) bool { return true }

// Do executes fn with exponential backoff until it succeeds, returns an error
// retryable rejects, or MaxAttempts is reached. It returns the number of
// attempts made. Retry is skipped once ctx is done.
func Do[T any](ctx context.Context, cfg Config, retryable Retryable, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if retryable == nil {
		retryable = Always
	}

	var lastErr error
	backoff := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, attempt, lastErr
		}
		if !retryable(err) || attempt == cfg.MaxAttempts {
			return zero, attempt, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, lastErr
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
			backoff = cfg.MaxDelay
		}
	}

	return zero, cfg.MaxAttempts, lastErr
}
