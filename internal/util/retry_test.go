package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SuccessImmediate(t *testing.T) {
	result, err := Retry(3, func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %d", result)
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	calls := 0
	result, err := Retry(3, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 99, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != 99 {
		t.Fatalf("expected 99, got %d", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_PersistentFailure(t *testing.T) {
	calls := 0
	_, err := Retry(3, func() (int, error) {
		calls++
		return 0, errors.New("persistent")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithContext_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithContext(ctx, 3, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected 0 calls after cancel, got %d", calls)
	}
}

func TestRetryBackoff_GrowsDelay(t *testing.T) {
	cfg := BackoffConfig{MaxTries: 3, Initial: time.Millisecond, Max: 4 * time.Millisecond}

	var stamps []time.Time
	_, err := RetryBackoff(context.Background(), cfg, nil, func(ctx context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(stamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(stamps))
	}
	if gap := stamps[2].Sub(stamps[1]); gap < 2*time.Millisecond {
		t.Fatalf("expected second gap >= 2ms, got %v", gap)
	}
}

func TestRetryBackoff_NonRetryableStopsEarly(t *testing.T) {
	cfg := BackoffConfig{MaxTries: 5, Initial: time.Millisecond}
	permanent := errors.New("permanent")

	calls := 0
	_, err := RetryBackoff(context.Background(), cfg, func(err error) bool {
		return !errors.Is(err, permanent)
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryBackoffErr_SuccessAfterRetry(t *testing.T) {
	cfg := BackoffConfig{MaxTries: 3, Initial: time.Millisecond}

	calls := 0
	err := RetryBackoffErr(context.Background(), cfg, nil, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}
