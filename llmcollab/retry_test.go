package llmcollab

import (
	"context"
	"errors"
	"testing"
	"time"
)

func serverErr(msg string) error {
	return &ServerError{ProviderError: ProviderError{
		CollabError: CollabError{Message: msg}, Retryable: true,
	}}
}

func TestRetryPolicyDelayBackoff(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 60.0, Jitter: false}

	for i, expected := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		if got := policy.Delay(i); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 5.0, Jitter: false}
	if got := policy.Delay(10); got != 5*time.Second {
		t.Errorf("expected capped 5s, got %v", got)
	}
}

func TestRetryPolicyDelayJitterRange(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 60.0, Jitter: true}
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Errorf("jittered delay out of range: %v", got)
		}
	}
}

func TestNextDelayPrefersRetryAfter(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 1.0, BackoffMultiplier: 2.0, MaxDelay: 10.0, Jitter: false}

	after := 3.0
	rl := &RateLimitError{ProviderError: ProviderError{
		CollabError: CollabError{Message: "slow down"},
		Retryable:   true,
		RetryAfter:  &after,
	}}
	delay, ok := policy.nextDelay(rl, 0)
	if !ok || delay != 3*time.Second {
		t.Errorf("expected Retry-After 3s, got %v (ok=%v)", delay, ok)
	}

	excessive := 30.0
	rl.RetryAfter = &excessive
	if _, ok := policy.nextDelay(rl, 0); ok {
		t.Error("Retry-After beyond MaxDelay must abandon the retry")
	}

	// Without Retry-After the backoff schedule applies.
	if delay, ok := policy.nextDelay(serverErr("flaky"), 2); !ok || delay != 4*time.Second {
		t.Errorf("expected backoff 4s, got %v (ok=%v)", delay, ok)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	calls := 0
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", serverErr("flaky")
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" || calls != 3 {
		t.Errorf("expected done after 3 calls, got %q after %d", result, calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", &AuthenticationError{ProviderError: ProviderError{
			CollabError: CollabError{Message: "bad key"},
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error must not retry, got %d calls", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", serverErr("persistent")
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 { // initial + 2 retries
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 10.0, BackoffMultiplier: 1, MaxDelay: 60.0}

	retryAfter := 0.01
	calls := 0
	start := time.Now()
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &RateLimitError{ProviderError: ProviderError{
				CollabError: CollabError{Message: "slow down"},
				Retryable:   true,
				RetryAfter:  &retryAfter,
			}}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Retry-After not honored, waited %v", elapsed)
	}
}

func TestRetryRejectsExcessiveRetryAfter(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 1.0, BackoffMultiplier: 1, MaxDelay: 5.0}

	retryAfter := 120.0
	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{ProviderError: ProviderError{
			CollabError: CollabError{Message: "slow down"},
			Retryable:   true,
			RetryAfter:  &retryAfter,
		}}
	})
	if err == nil {
		t.Fatal("expected immediate error when Retry-After exceeds max delay")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryCancellation(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: 1.0, BackoffMultiplier: 1, MaxDelay: 1.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return "", serverErr("always")
	})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %v", err)
	}
}
