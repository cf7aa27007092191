package llm

import "errors"

var (
	// ErrRateLimited indicates the backend rejected the call with a
	// rate-limit signal. Surfaced to the client as 429.
	ErrRateLimited = errors.New("backend rate limit exceeded")

	// ErrBackendUnavailable covers every other backend failure,
	// including an open circuit breaker. Surfaced as 502.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
