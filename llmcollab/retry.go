package llmcollab

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds how many times a provider call is reissued and how long
// to pause between attempts. Delays are in seconds to match provider
// Retry-After values.
type RetryPolicy struct {
	MaxRetries        int // retries after the initial call
	BaseDelay         float64
	MaxDelay          float64
	BackoffMultiplier float64
	Jitter            bool
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay returns the backoff pause before retry attempt (0-indexed), jittered
// within [50%, 150%] when enabled.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

func (p RetryPolicy) maxDelay() time.Duration {
	return time.Duration(p.MaxDelay * float64(time.Second))
}

// nextDelay picks the pause before the next retry. A rate limit response
// carrying Retry-After overrides the backoff schedule; when the provider
// asks for a longer pause than MaxDelay allows, the second value is false
// and the retry is abandoned.
func (p RetryPolicy) nextDelay(err error, attempt int) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		if after, ok := rl.retryAfterDelay(); ok {
			if after > p.maxDelay() {
				return 0, false
			}
			return after, true
		}
	}
	return p.Delay(attempt), true
}

// Retry runs fn until it succeeds, fails unretryably, or the policy's
// attempt budget is spent. The last error is returned on exhaustion.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxRetries || !IsRetryable(err) {
			return zero, err
		}

		delay, ok := policy.nextDelay(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{CollabError: CollabError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}
	}
}
