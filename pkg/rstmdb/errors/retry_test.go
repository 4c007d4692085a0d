package errors

import (
	"context"
	"testing"
	"time"
)

func TestBackoffBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := Backoff(base, 0.5)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("Backoff() = %v, want within [50ms, 150ms]", d)
		}
	}
}

func TestBackoffNoJitter(t *testing.T) {
	if d := Backoff(time.Second, 0); d != time.Second {
		t.Errorf("Backoff(1s, 0) = %v, want 1s", d)
	}
}

func TestWithRetryContextSucceedsAfterTransient(t *testing.T) {
	calls := 0
	res := WithRetryContext(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2.0,
	}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ConnectionLostError{Generation: 1}
		}
		return "done", nil
	})

	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if res.Value != "done" || res.Attempts != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestWithRetryContextStopsOnPermanent(t *testing.T) {
	calls := 0
	res := WithRetryContext(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, &ServerError{Code: "INVALID_TRANSITION"}
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors are not retried)", calls)
	}
	if res.Err == nil {
		t.Error("Err = nil, want server error")
	}
}

func TestWithRetryContextHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := WithRetryContext(ctx, DefaultReconnect, func(ctx context.Context) (int, error) {
		t.Fatal("fn called after cancellation")
		return 0, nil
	})
	if res.Err != context.Canceled {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
}

func TestWithRetryContextExhaustsAttempts(t *testing.T) {
	calls := 0
	res := WithRetryContext(context.Background(), RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, &TimeoutError{Op: "PING", Timeout: time.Second}
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if res.Err == nil {
		t.Error("Err = nil, want timeout error")
	}
}
