package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/torosent/ga4sim/internal/backoff"
	"github.com/torosent/ga4sim/internal/failure"
)

// HTTPError represents a failed HTTP exchange with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RetryPolicy configures retry behavior for a single phase.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all errors retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
	Sleep       func(ctx context.Context, d time.Duration) error
	OnAttempt   func(attempt int, err error) // called after every attempt, success included
}

// PolicyFromBackoff builds the phase retry policy from a backoff schedule:
// only transient errors are retried, waiting NextDelay between attempts.
func PolicyFromBackoff(p backoff.Policy) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: p.Attempts(),
		ShouldRetry: func(err error) bool {
			return p.Classify(err) == failure.Transient
		},
		DelayFunc: func(attempt int, _ error) time.Duration {
			return p.NextDelay(attempt)
		},
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return attempts, lastErr
		}

		attempts = attempt
		lastErr = op(ctx, attempt)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, lastErr)
		}
		if lastErr == nil {
			return attempts, nil
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
			return attempts, lastErr
		}

		// Don't delay after the last attempt.
		if attempt < maxAttempts {
			delay := p.Delay
			if p.DelayFunc != nil {
				delay = p.DelayFunc(attempt, lastErr)
			}
			if delay > 0 {
				if err := sleep(ctx, delay); err != nil {
					return attempts, lastErr
				}
			}
		}
	}
	return attempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
