package client

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a package, version, or file is not found.
var ErrNotFound = errors.New("not found")

// ErrInvalidResponse is returned when a registry response cannot be decoded
// or lacks required fields.
var ErrInvalidResponse = errors.New("invalid registry response")

// ErrInvalidParams is returned for malformed caller input. It is always
// raised before any network call is made.
var ErrInvalidParams = errors.New("invalid parameters")

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsNotFound returns true if the error represents a 404 response.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == 404
}

// NotFoundError wraps ErrNotFound with package context.
type NotFoundError struct {
	Name    string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("package %s version %s not found", e.Name, e.Version)
	}
	return fmt.Sprintf("package %s not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitError is returned when the registry rate limits requests.
type RateLimitError struct {
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfter)
}
