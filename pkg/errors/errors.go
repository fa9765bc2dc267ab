// Package errors defines the coded errors shared by the gangsheet library,
// CLI and HTTP API.
//
// Every failure a caller can act on carries a [Code]. The API returns the
// code in its JSON error body and derives the response status from it; the
// CLI prints [UserMessage].
//
//	if errors.Is(err, errors.ErrCodeInvalidImage) {
//	    // skip the upload, keep the rest
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error kind.
type Code string

const (
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidImage  Code = "INVALID_IMAGE"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeInvalidSheet  Code = "INVALID_SHEET"

	ErrCodeEmptyLayout   Code = "EMPTY_LAYOUT"
	ErrCodeDecodeFailure Code = "DECODE_FAILURE"
	ErrCodeLimitExceeded Code = "LIMIT_EXCEEDED"

	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeDesignNotFound  Code = "DESIGN_NOT_FOUND"
	ErrCodeSessionNotFound Code = "SESSION_NOT_FOUND"

	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

var statusByCode = map[Code]int{
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidImage:    http.StatusBadRequest,
	ErrCodeInvalidFormat:   http.StatusBadRequest,
	ErrCodeInvalidSheet:    http.StatusBadRequest,
	ErrCodeEmptyLayout:     http.StatusConflict,
	ErrCodeLimitExceeded:   http.StatusConflict,
	ErrCodeDecodeFailure:   http.StatusUnprocessableEntity,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeDesignNotFound:  http.StatusNotFound,
	ErrCodeSessionNotFound: http.StatusNotFound,
	ErrCodeNetwork:         http.StatusBadGateway,
	ErrCodeTimeout:         http.StatusGatewayTimeout,
	ErrCodeUnsupported:     http.StatusNotImplemented,
}

// Status is the HTTP status the API answers with for c.
// INVALID_CONFIG and INTERNAL_ERROR are server faults and map to 500.
func (c Code) Status() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap is New with a cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Cause = cause
	return e
}

// Is reports whether the outermost *Error in err's chain has code.
func Is(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// GetCode returns the code of the outermost *Error in err's chain, or "".
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage strips the code prefix and cause from coded errors.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps err to a response status. Uncoded errors are 500.
func HTTPStatus(err error) int {
	return GetCode(err).Status()
}
