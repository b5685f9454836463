package errdefs

import (
	"fmt"
	"net/http"
	"testing"
)

func TestGetCode(t *testing.T) {
	err := New(CodeNotFound, "service [a] not found")
	if got := GetCode(err); got != CodeNotFound {
		t.Errorf("GetCode() = %q, want %q", got, CodeNotFound)
	}
	if got := GetCode(fmt.Errorf("plain")); got != "" {
		t.Errorf("GetCode(plain) = %q, want empty", got)
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	inner := New(CodeConflict, "raced")
	wrapped := fmt.Errorf("updating service: %w", inner)
	if !IsCode(wrapped, CodeConflict) {
		t.Error("IsCode() failed to unwrap")
	}
}

func TestRateLimitedCarriesRetryHint(t *testing.T) {
	err := RateLimited(120, 60, 17)
	if err.RetryAfterSec != 17 {
		t.Errorf("RetryAfterSec = %d, want 17", err.RetryAfterSec)
	}
	if err.Code != CodeRateLimited {
		t.Errorf("Code = %q, want %q", err.Code, CodeRateLimited)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeBadRequest, http.StatusBadRequest},
		{CodeBadLink, http.StatusBadRequest},
		{CodeAlreadyExists, http.StatusBadRequest},
		{CodeAlreadyLinked, http.StatusBadRequest},
		{CodeNotLinked, http.StatusBadRequest},
		{CodeUnlinked, http.StatusBadRequest},
		{CodeNoAPIKey, http.StatusUnauthorized},
		{CodeInvalidAdminKey, http.StatusUnauthorized},
		{CodeInvalidEntityKey, http.StatusUnauthorized},
		{CodeTokenExpired, http.StatusUnauthorized},
		{CodeInvalidToken, http.StatusUnauthorized},
		{CodeUnknownKid, http.StatusUnauthorized},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodePreconditionFailed, http.StatusPreconditionFailed},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeKeysUnavailable, http.StatusServiceUnavailable},
		{CodeBackendError, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := HTTPStatus(New(tt.code, "x")); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
	if got := HTTPStatus(fmt.Errorf("plain")); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus(plain) = %d, want 500", got)
	}
}
