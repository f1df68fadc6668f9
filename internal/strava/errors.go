package strava

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized signals a 401 from the provider. The client never
	// retries these itself; the caller refreshes the token and retries
	// the call exactly once.
	ErrUnauthorized = errors.New("strava: unauthorized")

	// ErrRateLimitExceeded signals that one call exhausted its retry
	// budget on consecutive 429s.
	ErrRateLimitExceeded = errors.New("strava: rate limit retries exhausted")

	// ErrUpstreamUnavailable signals that one call exhausted its retry
	// budget on 5xx responses or transport failures.
	ErrUpstreamUnavailable = errors.New("strava: upstream unavailable")
)

// APIError is a terminal 4xx response (other than 401/429). It is never
// retried; callers mark the affected record and move on.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava: api error: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the error is a failed-for-now condition the
// caller may retry later, as opposed to a terminal one.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, ErrUpstreamUnavailable)
}
