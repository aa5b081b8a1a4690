package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for schema and dependency misuse. These indicate
// programming errors in route definitions, not bad client input.
var (
	ErrNilSchema  = errors.New("nil schema")
	ErrNilFactory = errors.New("nil dependency factory")
	ErrDecodeBody = errors.New("decode body")
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// HeaderCoder is implemented by errors that carry response headers, such as
// a WWW-Authenticate challenge raised by an auth dependency factory.
type HeaderCoder interface {
	ErrorHeaders() http.Header
}

// ValidationError describes a single field validation failure. Field is the
// dot path to the offending field, so nested objects report "user.email".
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationFailure is the error raised when schema validation rejects input.
// The field errors preserve the order of first detection.
type ValidationFailure struct {
	Errors []ValidationError `json:"errors"`
}

// Error returns a summary naming the violation count.
func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(e.Errors))
}

// StatusCode returns 422 Unprocessable Entity.
func (e *ValidationFailure) StatusCode() int { return http.StatusUnprocessableEntity }

// HTTPError is an error with an HTTP status code and optional response
// headers (e.g. an auth challenge).
type HTTPError struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Headers http.Header `json:"-"`
}

// Error returns the error message.
func (e *HTTPError) Error() string { return e.Message }

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int { return e.Status }

// ErrorHeaders returns headers to attach to the error response.
func (e *HTTPError) ErrorHeaders() http.Header { return e.Headers }

// Error returns an error with the given HTTP status code and message.
func Error(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

// Errorf returns a formatted error with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized returns a 401 error. A non-empty challenge is attached as
// a WWW-Authenticate header for the security-scheme collaborators.
func Unauthorized(challenge string) error {
	e := &HTTPError{Status: http.StatusUnauthorized, Message: "unauthorized"}
	if challenge != "" {
		e.Headers = http.Header{}
		e.Headers.Set("WWW-Authenticate", challenge)
	}
	return e
}

// Forbidden returns a 403 error with the given message.
func Forbidden(message string) error {
	if message == "" {
		message = "forbidden"
	}
	return &HTTPError{Status: http.StatusForbidden, Message: message}
}

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// ErrorHeaders extracts response headers from an error, or nil.
func ErrorHeaders(err error) http.Header {
	var hc HeaderCoder
	if errors.As(err, &hc) {
		return hc.ErrorHeaders()
	}
	return nil
}
