package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior for transient failures.
// It is injected into the index runner and the search engine so the backoff
// shape is testable independently of any network call.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay grows after each retry.
	Multiplier float64

	// Jitter randomizes each delay to avoid synchronized retry storms
	// against a rate-limited embeddings API.
	Jitter bool
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry executes fn with exponential backoff.
//
// A HindexError with Retryable=false stops retrying immediately: a dimension
// mismatch will not fix itself on attempt three. Plain errors are treated as
// retryable so transport-level failures from client libraries still back off.
// Context cancellation is honored both between attempts and during waits.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	_, err := RetryWithResult(ctx, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that return a value.
func RetryWithResult[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if he, ok := err.(*HindexError); ok && !he.Retryable {
			return zero, err
		}

		if attempt == attempts {
			break
		}

		waitDelay := delay
		if policy.Jitter {
			// Full jitter: delay * (0.5 + rand(0, 0.5)).
			waitDelay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(waitDelay):
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
