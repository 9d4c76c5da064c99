// Package domainerrors carries the error taxonomy shared by services and the
// HTTP layer. Services return *Error values; transports map Code to a status.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Values double as the public "error" field
// in JSON error envelopes.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeBadRequest        Code = "bad_request"
	CodeDuplicateIdentity Code = "duplicate_identity"
	CodeConflict          Code = "conflict"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeRateLimited       Code = "rate_limit_exceeded"
	CodePersistence       Code = "persistence_error"
	CodeSigning           Code = "signing_error"
	CodeTimeout           Code = "timeout"
	CodeInternal          Code = "internal_error"
)

// Error is a classified error with a caller-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a domain error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies err under code. The message is what callers may see; err is
// kept for logs only.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// HasCode is an alias of Is kept for readability in tests.
func HasCode(err error, code Code) bool {
	return Is(err, code)
}

// IsClientError reports whether the error should be surfaced verbatim.
func IsClientError(code Code) bool {
	switch code {
	case CodeValidation, CodeBadRequest, CodeDuplicateIdentity, CodeConflict,
		CodeNotFound, CodeUnauthorized, CodeForbidden, CodeRateLimited:
		return true
	default:
		return false
	}
}

// ToHTTPStatus maps a code to the status written by the HTTP layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeDuplicateIdentity, CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
