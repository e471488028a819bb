package task

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy decides whether a failed attempt is run again. MaxRetries
// counts retries, not tries: MaxRetries 1 allows two calls in total.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Retryable  func(error) bool
}

// NoRetry never retries.
var NoRetry = RetryPolicy{}

// RetryOn retries errors matching any of targets (by errors.Is).
func RetryOn(maxRetries int, delay time.Duration, targets ...error) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		Delay:      delay,
		Retryable: func(err error) bool {
			for _, t := range targets {
				if errors.Is(err, t) {
					return true
				}
			}
			return false
		},
	}
}

// ShouldRetry reports whether err is in a retryable class. Context errors
// never are.
func (p RetryPolicy) ShouldRetry(err error) bool {
	if p.Retryable == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return p.Retryable(err)
}

func (p RetryPolicy) wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
