package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class on the wire. The code travels in the
// response body as error_code.
type Code string

const (
	// User-input errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeAlreadyLinked Code = "ALREADY_LINKED"
	CodeNotLinked     Code = "NOT_LINKED"
	CodeBadLink       Code = "BAD_LINK"
	CodeBadRequest    Code = "BAD_REQUEST"

	// Authentication errors
	CodeNoAPIKey         Code = "NO_API_KEY"
	CodeInvalidAdminKey  Code = "INVALID_ADMIN_KEY"
	CodeInvalidEntityKey Code = "INVALID_ENTITY_KEY"

	// Throttling
	CodeRateLimited Code = "RATE_LIMITED"

	// Concurrency errors
	CodeConflict           Code = "CONFLICT"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"

	// Token-layer errors
	CodeUnlinked        Code = "UNLINKED"
	CodeTokenExpired    Code = "TOKEN_EXPIRED"
	CodeInvalidToken    Code = "INVALID_TOKEN"
	CodeUnknownKid      Code = "UNKNOWN_KID"
	CodeKeysUnavailable Code = "KEYS_UNAVAILABLE"

	// Transport failure during a write
	CodeBackendError Code = "BACKEND_ERROR"
)

// Error is a coded error carried across package boundaries and rendered as
// {error_code, message, [retry_after_sec]} at the HTTP layer.
type Error struct {
	Code          Code   `json:"error_code"`
	Message       string `json:"message"`
	RetryAfterSec int    `json:"retry_after_sec,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a coded error
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a NOT_FOUND error for the given entity kind and id
func NotFound(kind, id string) *Error {
	return Newf(CodeNotFound, "%s [%s] not found", kind, id)
}

// RateLimited creates a RATE_LIMITED error carrying a retry hint
func RateLimited(limit int, windowSec, retryAfterSec int) *Error {
	return &Error{
		Code:          CodeRateLimited,
		Message:       fmt.Sprintf("too many requests (limit %d/%ds)", limit, windowSec),
		RetryAfterSec: retryAfterSec,
	}
}

// GetCode extracts the code from err, or empty when err is not a coded error
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// HTTPStatus maps a coded error to its HTTP status. Unknown errors map
// to 500.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeBadRequest, CodeBadLink, CodeAlreadyExists, CodeAlreadyLinked, CodeNotLinked, CodeUnlinked:
		return http.StatusBadRequest
	case CodeNoAPIKey, CodeInvalidAdminKey, CodeInvalidEntityKey, CodeTokenExpired, CodeInvalidToken, CodeUnknownKid:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeKeysUnavailable, CodeBackendError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
