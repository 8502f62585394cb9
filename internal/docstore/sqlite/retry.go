package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetryConfig bounds retries of commits that hit a locked database.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry policy used by Open.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// withRetry runs fn until it succeeds, fails with a non transient error, or
// the retry budget is spent. fn must be safe to repeat; a rolled back
// transaction is.
func (c RetryConfig) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.InitialDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * c.BackoffFactor)
				if delay > c.MaxDelay {
					delay = c.MaxDelay
				}
			}
		}

		lastErr = fn()
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("sqlite: gave up after %d retries: %w", c.MaxRetries, lastErr)
}

// isBusy reports SQLITE_BUSY and SQLITE_LOCKED conditions. The driver only
// exposes them through the message text.
func isBusy(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"database is locked", "database table is locked", "SQLITE_BUSY", "SQLITE_LOCKED"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
