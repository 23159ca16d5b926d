package qrefresh

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPolicy retries an operation that may fail transiently, such as opening a port.
type RetryPolicy struct {
	MaxAttempts int
	Strategy    RetryStrategy
	Filter      func(error) bool
}

// RetryStrategy picks the wait before the given attempt.
type RetryStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles the wait after every failed attempt.
type ExponentialBackoff struct {
	Initial time.Duration
}

// NextDelay doubles Initial per attempt.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	return eb.Initial * time.Duration(math.Pow(2, float64(attempt-1)))
}

/*
Do runs fn until it succeeds, the attempts run out, the filter rejects the
error, or ctx ends. fn receives the zero-based attempt number.
*/
func (rp *RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(rp.Strategy.NextDelay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
			case <-timer.C:
			}
		}

		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}

		if rp.Filter != nil && !rp.Filter(lastErr) {
			break
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", rp.MaxAttempts, lastErr)
}
