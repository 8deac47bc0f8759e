// Package retry runs an operation again after transient failures.
//
// EXPONENTIAL BACKOFF:
// The wait before attempt n (counting from 1) is BaseDelay * 2^(n-2):
//
//	attempt 1 → immediately
//	attempt 2 → after BaseDelay
//	attempt 3 → after 2 * BaseDelay
//
// Waiting is done with a timer inside a select on ctx.Done(), so a client
// that disconnects (or a handler deadline) stops the loop at once instead of
// sleeping through the remaining delays.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy configures Do.
type Policy struct {
	Attempts  int           // total tries including the first; values < 1 mean 1
	BaseDelay time.Duration // wait before the second try, doubled each time after

	// Retryable decides whether err is worth another try.
	// nil means every error except context cancellation is retried.
	Retryable func(err error) bool
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. The returned error wraps the last failure.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.BaseDelay << (attempt - 2)
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt-1, errors.Join(err, lastErr))
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
