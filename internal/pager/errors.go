package pager

import (
	"fmt"
	"time"
)

// RateLimitError signals an HTTP 429 under the Abort policy. It carries the
// server-requested wait so callers can report it or schedule a retry.
// Rate limiting is an expected condition, not a transport failure, so it gets
// its own type rather than a wrapped generic error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// APIError signals a non-2xx response (other than a handled 429) or an
// explicit error field inside a 200 payload. It is never retried silently.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}
