package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Zero or negative means unlimited.
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0). Reconnects use 0.5 so a
	// server restart does not see a thundering herd of synchronized clients.
	Jitter float64

	// RetryableFunc optionally overrides the default retryability check.
	RetryableFunc func(error) bool
}

// DefaultReconnect is the standard reconnection backoff configuration.
var DefaultReconnect = RetryConfig{
	MaxAttempts:    0, // unlimited
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     60 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.5,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// RetryResult contains the result of a retry operation.
type RetryResult[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent retrying.
	Duration time.Duration
}

// WithRetryContext executes fn with retries, respecting context cancellation.
// Backoff grows by BackoffFactor per attempt, capped at MaxBackoff, with
// Jitter applied to each sleep.
func WithRetryContext[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func(context.Context) (T, error),
) RetryResult[T] {
	start := time.Now()
	backoff := cfg.InitialBackoff
	var lastErr error

	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	for attempt := 0; cfg.MaxAttempts <= 0 || attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RetryResult[T]{Err: err, Attempts: attempt, Duration: time.Since(start)}
		}

		result, err := fn(ctx)
		if err == nil {
			return RetryResult[T]{Value: result, Attempts: attempt + 1, Duration: time.Since(start)}
		}
		lastErr = err

		if !isRetryable(err) {
			return RetryResult[T]{Err: err, Attempts: attempt + 1, Duration: time.Since(start)}
		}

		sleep := Backoff(backoff, cfg.Jitter)
		select {
		case <-ctx.Done():
			return RetryResult[T]{Err: ctx.Err(), Attempts: attempt + 1, Duration: time.Since(start)}
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return RetryResult[T]{Err: lastErr, Attempts: cfg.MaxAttempts, Duration: time.Since(start)}
}

// Backoff returns base with jitter applied: base +/- (base * jitter * rand).
func Backoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	amount := float64(base) * jitter * (rand.Float64()*2 - 1)
	d := time.Duration(float64(base) + amount)
	if d < 0 {
		return 0
	}
	return d
}
