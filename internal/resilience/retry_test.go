package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastRetryConfig(5), nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	}, fastRetryConfig(5), func(err error) bool { return false })

	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	}, fastRetryConfig(3), nil)

	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, fastRetryConfig(5), nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestRestartBudget_LimitWithinWindow(t *testing.T) {
	b := NewRestartBudget(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("restart %d should be within budget", i)
		}
	}
	if b.Allow() {
		t.Error("fourth restart should exceed the budget")
	}
	if b.Used() != 3 {
		t.Errorf("expected 3 used, got %d", b.Used())
	}
}

func TestRestartBudget_WindowSlides(t *testing.T) {
	b := NewRestartBudget(2, time.Minute)

	base := time.Now()
	current := base
	b.now = func() time.Time { return current }

	if !b.Allow() || !b.Allow() {
		t.Fatal("first two restarts should be allowed")
	}
	if b.Allow() {
		t.Fatal("third restart should be denied")
	}

	// After the window passes, old restarts stop counting.
	current = base.Add(2 * time.Minute)
	if !b.Allow() {
		t.Error("restart after the window should be allowed again")
	}
}
