package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "error without wrapped error",
			appErr:   ErrWebhookNotFound,
			expected: "Webhook not found",
		},
		{
			name: "error with wrapped error",
			appErr: &AppError{
				Code:       "TEST_ERROR",
				Message:    "Test message",
				StatusCode: 500,
				Err:        errors.New("underlying error"),
			},
			expected: "Test message: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	appErr := &AppError{
		Code:       "TEST",
		Message:    "test",
		StatusCode: 500,
		Err:        underlying,
	}

	if got := appErr.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	if got := ErrWebhookNotFound.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestAppError_WithError(t *testing.T) {
	underlying := errors.New("db connection failed")
	newErr := ErrInternal.WithError(underlying)

	if newErr.Code != ErrInternal.Code {
		t.Errorf("Code = %v, want %v", newErr.Code, ErrInternal.Code)
	}

	if newErr.StatusCode != ErrInternal.StatusCode {
		t.Errorf("StatusCode = %v, want %v", newErr.StatusCode, ErrInternal.StatusCode)
	}

	if !errors.Is(newErr, underlying) {
		t.Errorf("errors.Is should return true for wrapped error")
	}

	if !errors.Is(newErr, ErrInternal) {
		t.Errorf("errors.Is should match the sentinel by code")
	}
}

func TestAppError_WithMessage(t *testing.T) {
	err := ErrValidationFailed.WithMessage("url: is required")

	if err.Message != "url: is required" {
		t.Errorf("Message = %v, want url: is required", err.Message)
	}
	if ErrValidationFailed.Message != "Request validation failed" {
		t.Errorf("sentinel must not be mutated, got %q", ErrValidationFailed.Message)
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("errors.Is should match the sentinel by code")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := ErrValidationFailed.WithDetails(map[string]string{"url": "is required"})

	if err.Details["url"] != "is required" {
		t.Errorf("Details[url] = %q, want is required", err.Details["url"])
	}
	if ErrValidationFailed.Details != nil {
		t.Errorf("sentinel must not be mutated")
	}
	if got := err.WithMessage("bad body").Details["url"]; got != "is required" {
		t.Errorf("WithMessage dropped details, got %q", got)
	}
}

func TestErrorsAs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("get webhook: %w", ErrWebhookNotFound)

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("errors.As should match AppError")
	}

	if appErr.Code != "WEBHOOK_NOT_FOUND" {
		t.Errorf("Code = %v, want WEBHOOK_NOT_FOUND", appErr.Code)
	}

	if errors.Is(err, ErrNotFound) {
		t.Errorf("different codes must not match")
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err        *AppError
		code       string
		statusCode int
	}{
		{ErrInternal, "INTERNAL_ERROR", 500},
		{ErrBadRequest, "BAD_REQUEST", 400},
		{ErrUnauthorized, "UNAUTHORIZED", 401},
		{ErrNotFound, "NOT_FOUND", 404},
		{ErrRateLimitExceeded, "RATE_LIMIT_EXCEEDED", 429},
		{ErrValidationFailed, "VALIDATION_FAILED", 422},
		{ErrWebhookNotFound, "WEBHOOK_NOT_FOUND", 404},
		{ErrQueuedEventNotClaimed, "QUEUED_EVENT_NOT_CLAIMED", 409},
		{ErrInsecureURL, "INSECURE_URL", 422},
		{ErrPrivateURL, "PRIVATE_URL", 422},
		{ErrUnknownEventType, "UNKNOWN_EVENT_TYPE", 422},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %v, want %v", tt.err.StatusCode, tt.statusCode)
			}
		})
	}
}
