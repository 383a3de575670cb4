package provider

import (
	"context"
	"time"
)

// retrier holds shared retry configuration for Adapters, grounded on the
// teacher's providers.BaseProvider.
type retrier struct {
	maxRetries int
	retryDelay time.Duration
}

func newRetrier(maxRetries int, retryDelay time.Duration) retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return retrier{maxRetries: maxRetries, retryDelay: retryDelay}
}

// retry runs op with linear backoff while isRetryable(err) holds.
func (r retrier) retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) || attempt >= r.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}
