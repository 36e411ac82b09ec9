package domain

import (
	"fmt"
)

type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	StatusCode int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches by code so copies made with WithError/WithMessage still
// satisfy errors.Is against the sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    e.Details,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

func (e *AppError) WithMessage(msg string) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    msg,
		Details:    e.Details,
		StatusCode: e.StatusCode,
		Err:        e.Err,
	}
}

// WithDetails attaches per-field messages, keyed by JSON field name.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		StatusCode: e.StatusCode,
		Err:        e.Err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing credentials",
		StatusCode: 401,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	// Webhook errors
	ErrWebhookNotFound = &AppError{
		Code:       "WEBHOOK_NOT_FOUND",
		Message:    "Webhook not found",
		StatusCode: 404,
	}

	ErrQueuedEventNotFound = &AppError{
		Code:       "QUEUED_EVENT_NOT_FOUND",
		Message:    "Queued event not found",
		StatusCode: 404,
	}

	ErrQueuedEventNotClaimed = &AppError{
		Code:       "QUEUED_EVENT_NOT_CLAIMED",
		Message:    "Queued event is not in processing state",
		StatusCode: 409,
	}

	ErrInsecureURL = &AppError{
		Code:       "INSECURE_URL",
		Message:    "Webhook URL must use https",
		StatusCode: 422,
	}

	ErrPrivateURL = &AppError{
		Code:       "PRIVATE_URL",
		Message:    "Webhook URL must resolve to a public address",
		StatusCode: 422,
	}

	ErrUnknownEventType = &AppError{
		Code:       "UNKNOWN_EVENT_TYPE",
		Message:    "Unknown event type",
		StatusCode: 422,
	}

	ErrUnsupportedMethod = &AppError{
		Code:       "UNSUPPORTED_METHOD",
		Message:    "Unsupported HTTP method",
		StatusCode: 422,
	}
)
