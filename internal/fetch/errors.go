// SPDX-License-Identifier: MIT

package fetch

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound    = errors.New("fetch: resource not found")
	ErrForbidden   = errors.New("fetch: access forbidden")
	ErrUnavailable = errors.New("fetch: host unreachable or transport failure")
	ErrUpstream    = errors.New("fetch: upstream error (5xx)")
	ErrThrottled   = errors.New("fetch: throttled by upstream (429)")
	ErrTimeout     = errors.New("fetch: request timed out")
)

// Error is a rich error type that wraps the sentinel errors with context.
type Error struct {
	Sentinel error
	URL      string
	Status   int
	Err      error // nested lower-level error (e.g. net.Error)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.URL, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Retryable reports whether a request may succeed if repeated. Transport
// failures, timeouts, 5xx and 429 responses qualify; 4xx do not.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrThrottled) ||
		errors.Is(err, ErrTimeout)
}

func statusError(url string, status int) error {
	var sentinel error
	switch {
	case status == 404:
		sentinel = ErrNotFound
	case status == 403 || status == 401:
		sentinel = ErrForbidden
	case status == 429:
		sentinel = ErrThrottled
	case status >= 500:
		sentinel = ErrUpstream
	default:
		sentinel = ErrUnavailable
	}
	return &Error{Sentinel: sentinel, URL: url, Status: status}
}
