package forge

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited marks policy denials from the local rate limiter. Callers
// must never retry these: the limiter's decision is final for the current
// window.
var ErrRateLimited = errors.New("rate limited")

// RateLimitedError carries the specific policy that denied an operation.
type RateLimitedError struct {
	// Op is the denied operation type.
	Op string

	// Reason is the limiter's explanation (which cap or cooldown fired).
	Reason string

	// RetryAfter is the remaining cooldown, when known.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("forge: %s denied: %s", e.Op, e.Reason)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// APIError is a non-2xx response from the forge.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("forge: %s: HTTP %d: %s", e.URL, e.StatusCode, e.Message)
}

// IsAuth reports whether the error is a terminal authentication or
// authorization failure (401/403) that must be surfaced to the operator.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsTransient reports whether the error is worth retrying: server-side
// failures and the occasional 429 the platform emits under load.
func (e *APIError) IsTransient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// asAPIError is a convenience wrapper around errors.As for call sites that
// need to inspect the status code.
func asAPIError(err error, target **APIError) bool { return errors.As(err, target) }

// IsTransient reports whether err is a retryable forge failure: a transient
// API error or a network-level failure. Policy denials and auth errors are
// never transient.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	// Network-level failures (connection refused, timeouts) arrive as
	// url.Error values wrapped by the HTTP client.
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return false
	}
	return err != nil
}
