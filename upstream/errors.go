package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrNoCredential is returned when no API credential is available for a call.
	ErrNoCredential = errors.New("respond.io API key is not set")
	// ErrNoEndpoint is returned when the API base URL is empty.
	ErrNoEndpoint = errors.New("respond.io base URL is not set")
)

// APIError is a non-2xx answer from the upstream API.
type APIError struct {
	Status  int
	Code    int
	Message string
	// RetryAfter is set for rate limited responses carrying a Retry-After header.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if msg == "" {
		msg = "Unknown error"
	}
	s := fmt.Sprintf("API Error %d: %s", e.Status, msg)
	if e.RetryAfter > 0 {
		s += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return s
}

// RateLimited reports whether the API throttled the request.
func (e *APIError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// Temporary reports whether the call is worth retrying.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == StatusRequestQueued
}

// NetworkError wraps a transport failure where no response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "Network Error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// StatusRequestQueued is Respond.io's "request queued, retry" status.
const StatusRequestQueued = 449

// Describe renders err the way it is surfaced to tool callers.
func Describe(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Error()
	}
	return "Error: " + err.Error()
}

// countsAgainstHealth reports whether a failed call says something about the
// health of the upstream rather than about the request.
func countsAgainstHealth(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
