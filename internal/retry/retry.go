// Package retry provides exponential-backoff retry for idempotent operations.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. Each subsequent wait
	// doubles, clamped to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay clamps the backoff. Zero means no clamp.
	MaxDelay time.Duration

	// RetryOn decides whether an error is worth retrying. A nil predicate
	// retries every error.
	RetryOn func(error) bool
}

// DefaultPolicy retries transient failures three times with a one-second
// doubling backoff clamped to ten seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, the predicate
// rejects the error, or ctx is cancelled. The last error is returned after
// the final attempt. Do must only be used for idempotent operations: policy
// denials and non-idempotent mutations are the caller's responsibility to
// keep out.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry: attempt %d: %w", attempt, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.RetryOn != nil && !p.RetryOn(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry: waiting before attempt %d: %w", attempt+1, ctx.Err())
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("retry: %d attempt(s) exhausted: %w", attempts, lastErr)
}
