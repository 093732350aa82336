package util

import (
	"context"
	"errors"
	"time"
)

// Retry calls fn up to maxTries times until it returns a non-nil result and nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func Retry[T any](maxTries int, fn func() (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// RetryErr calls fn up to maxTries times until it returns nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func RetryErr(maxTries int, fn func() error) error {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	for i := 0; i < maxTries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// RetryWithContext calls fn up to maxTries times until it returns a non-nil result and nil error,
// or until ctx is done. If maxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// BackoffConfig controls bounded retries with exponential backoff. Every
// collaborator call site carries its own explicit config; there are no
// SDK-default retries anywhere in the pipeline.
type BackoffConfig struct {
	MaxTries int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultBackoff is the baseline policy for store and model calls.
var DefaultBackoff = BackoffConfig{
	MaxTries: 3,
	Initial:  500 * time.Millisecond,
	Max:      10 * time.Second,
}

// RetryBackoff calls fn up to cfg.MaxTries times, sleeping an exponentially
// growing interval between attempts. The shouldRetry predicate decides
// whether an error is worth another attempt; a nil predicate retries
// everything. Context cancellation stops immediately.
func RetryBackoff[T any](
	ctx context.Context,
	cfg BackoffConfig,
	shouldRetry func(error) bool,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	maxTries := cfg.MaxTries
	if maxTries <= 0 {
		maxTries = 1
	}
	delay := cfg.Initial
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) {
			return zero, err
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return zero, err
		}
		lastErr = err

		if i == maxTries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if cfg.Max > 0 && delay > cfg.Max {
			delay = cfg.Max
		}
	}
	return zero, lastErr
}

// RetryBackoffErr is RetryBackoff for calls that only return an error.
func RetryBackoffErr(
	ctx context.Context,
	cfg BackoffConfig,
	shouldRetry func(error) bool,
	fn func(context.Context) error,
) error {
	_, err := RetryBackoff(ctx, cfg, shouldRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
