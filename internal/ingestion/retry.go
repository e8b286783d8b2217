package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WithRetry executes fn with exponential backoff, stopping early when
// ClassifyError judges the failure non-retryable (auth, bad request,
// not-found, fatal) rather than burning every attempt on an error a retry
// can't fix.
func WithRetry(ctx context.Context, attempts int, initial time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 3
	}
	if initial <= 0 {
		initial = 1 * time.Second
	}
	delay := initial
	var err error
	for i := 0; i < attempts; i++ {
		start := time.Now()
		err = fn()
		elapsed := time.Since(start)

		if err == nil {
			if i > 0 {
				slog.Info("ingestion retry succeeded", "attempt", i+1, "elapsed", elapsed)
			}
			return nil
		}

		classified := ClassifyError(err)
		slog.Warn("ingestion attempt failed", "attempt", i+1, "attempts", attempts, "elapsed", elapsed, "class", classified.Class, "error", err)

		if ctx.Err() != nil {
			return fmt.Errorf("ingestion: context cancelled after %d attempts: %w", i+1, ctx.Err())
		}
		if !classified.IsRetryable() {
			return fmt.Errorf("ingestion: non-retryable %s error: %w", classified.Class, err)
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ingestion: context cancelled during backoff: %w", ctx.Err())
		case <-time.After(delay):
			delay *= 2
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
		}
	}
	return fmt.Errorf("ingestion: failed after %d attempts: %w", attempts, err)
}
