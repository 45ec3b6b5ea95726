package retry

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExhausted is returned when every inner attempt failed with a
	// quota-class error.
	ErrQuotaExhausted = errors.New("quota retries exhausted")

	// ErrCallFailed is returned when the call failed with a non-quota error.
	// The concrete error is a *CallError.
	ErrCallFailed = errors.New("agent call failed")

	// ErrRateLimiterUnavailable is returned when a blocking permit
	// acquisition did not succeed. *ratelimit.Limiter keeps waiting for a
	// refill in blocking mode, so with it this only follows a cancelled or
	// expired context.
	ErrRateLimiterUnavailable = errors.New("rate limiter unavailable")
)

// CallError wraps the last non-quota failure of an invocation.
type CallError struct {
	Class    ErrorClass
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s) (%s): %v", ErrCallFailed, e.Attempts, e.Class, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Is reports ErrCallFailed as a match so callers can use errors.Is.
func (e *CallError) Is(target error) bool {
	return target == ErrCallFailed
}
