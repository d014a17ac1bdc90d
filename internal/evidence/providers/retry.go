package providers

import (
	"context"
	"fmt"
	"time"
)

const (
	retryAttempts = 3
	retryBase     = time.Second
	retryMax      = 30 * time.Second
)

// withRetry runs fn with exponential backoff, stopping early when the
// context dies.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := retryBase

	for attempt := 0; attempt <= retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if delay > retryMax {
				delay = retryMax
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}
