package core

import (
	"collectcore/pkg/domain"
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy bounds retries of transient storage failures with exponential
// backoff and jitter. Only retryable StorageErrors are retried; validation,
// scope, conflict, and rule errors surface immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is applied when the service is built without an override.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   50 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// Do runs fn, retrying on retryable storage errors until attempts or the
// context are exhausted. The last error is returned unwrapped so callers can
// still match the storage cause.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 2 * time.Second
	}
	delay := base << uint(attempt-1)
	if delay > max {
		delay = max
	}
	// Full jitter keeps concurrent retries from stampeding.
	return time.Duration(rand.Int63n(int64(delay) + 1))
}

func retryable(err error) bool {
	var storageErr *domain.StorageError
	return errors.As(err, &storageErr) && storageErr.Retryable
}
