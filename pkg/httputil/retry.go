package httputil

import (
	"context"
	"errors"
	"time"
)

// maxDelay caps the backoff between attempts.
const maxDelay = 30 * time.Second

// RetryableError marks a failure as transient. [Retry] only retries errors
// that carry one somewhere in their chain.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retry calls fn until it succeeds, fails permanently, or has been called
// attempts times. The wait starts at delay and doubles up to maxDelay.
// Cancelling ctx during a wait returns ctx.Err().
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if i > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			delay = min(delay*2, maxDelay)
		}
		if err = fn(); err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}

func isRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
