package llmcollab

import (
	"fmt"
	"strings"
	"time"
)

// CollabError is the base error type for collaborator failures.
type CollabError struct {
	Message string
	Cause   error
}

func (e *CollabError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CollabError) Unwrap() error {
	return e.Cause
}

// ProviderError is an error attributed to the LLM provider.
type ProviderError struct {
	CollabError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }

// retryAfterDelay reports the provider-requested pause, when one was given.
func (e *RateLimitError) retryAfterDelay() (time.Duration, bool) {
	if e.RetryAfter == nil {
		return 0, false
	}
	return time.Duration(*e.RetryAfter * float64(time.Second)), true
}

// Non-provider errors.

type RequestTimeoutError struct{ CollabError }
type AbortError struct{ CollabError }
type ParseError struct{ CollabError }

// classifyError converts a raw gollm error into the taxonomy above.
// gollm surfaces provider failures as opaque wrapped errors, so
// classification is by message content.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	pe := ProviderError{
		CollabError: CollabError{Message: msg, Cause: err},
		Provider:    provider,
	}
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		pe.StatusCode = 429
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		pe.StatusCode = 413
		return &ContextLengthError{ProviderError: pe}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		pe.StatusCode = 500
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{CollabError: CollabError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: pe}
	default:
		// Unknown provider errors default to retryable.
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable reports whether the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ProviderError:
		return e.Retryable
	case *AuthenticationError:
		return false
	case *ContextLengthError:
		return false
	case *ContentFilterError:
		return false
	case *ParseError:
		return false
	case *AbortError:
		return false
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *RequestTimeoutError:
		return true
	default:
		return true
	}
}
