// Package apperrors defines the error taxonomy surfaced at the service boundary.
//
// InputError maps to HTTP 400. UpstreamFetchError and DecodeError map to HTTP 500
// and are logged; they never stop a polling loop. A missing local entry is not an
// error: callers return empty results and render a placeholder.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// InputError reports a missing or malformed caller-supplied parameter.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewInputError returns an *InputError for field.
func NewInputError(field, message string) *InputError {
	return &InputError{Field: field, Message: message}
}

// UpstreamFetchError reports a network failure or non-2xx response from an
// upstream source (transit feed or activity spreadsheet).
type UpstreamFetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream fetch %s: HTTP %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("upstream fetch %s: %v", e.Source, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// DecodeError reports bytes that do not parse as the expected format.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsInput reports whether err is, or wraps, an *InputError.
func IsInput(err error) bool {
	var target *InputError
	return errors.As(err, &target)
}

// IsUpstream reports whether err is an upstream fetch or decode failure.
func IsUpstream(err error) bool {
	var fetchErr *UpstreamFetchError
	var decodeErr *DecodeError
	return errors.As(err, &fetchErr) || errors.As(err, &decodeErr)
}

// HTTPStatus maps err onto the status code the REST boundary reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
