// Package apierr defines the error taxonomy shared by every handler and
// service in the repository (SPEC_FULL.md §7 ERROR HANDLING DESIGN).
package apierr

import (
	"errors"
	"net/http"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeConflict     Code = "conflict"
	CodeNotAllowed   Code = "not_allowed"
	CodeUnavailable  Code = "unavailable"
	CodeInternal     Code = "internal"
)

// CodeNotAllowed shares HTTP 409 with CodeConflict: both describe a request
// that is individually well-formed but refused by the current state of the
// resource. 406 is reserved exclusively for the protocol-version-mismatch
// responses spec.md §6 calls out (e.g. SetPublicKey with version != 1),
// which handlers write directly rather than routing through this taxonomy.
var statusByCode = map[Code]int{
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeNotFound:     http.StatusNotFound,
	CodeBadRequest:   http.StatusBadRequest,
	CodeConflict:     http.StatusConflict,
	CodeNotAllowed:   http.StatusConflict,
	CodeUnavailable:  http.StatusServiceUnavailable,
	CodeInternal:     http.StatusInternalServerError,
}

// Error is the error type every component returns across a handler boundary.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the error's Code to the status spec.md §6 specifies.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Internal wraps an unexpected infrastructure error (DB, cache, …) the way
// §7 requires: business logic never leaks driver errors to the client.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Cause: cause}
}

func NotAllowed(message string) *Error {
	return &Error{Code: CodeNotAllowed, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
