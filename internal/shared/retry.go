package shared

import (
	"context"
	"log/slog"
	"time"
)

// RetryOnConflict runs op until it succeeds, returns a non-conflict error, or
// maxRetries attempts have been made. Attempts are spaced with exponential
// backoff starting at baseDelay (50ms, 100ms, 200ms, ...).
func RetryOnConflict(ctx context.Context, maxRetries int, baseDelay time.Duration, op func() error) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || i == maxRetries-1 {
			return err
		}

		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Database locked, retrying", "attempt", i+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
