package courier

import (
	"errors"
	"fmt"
)

// CourierError represents an error from a courier API.
type CourierError struct {
	Courier    string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *CourierError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Courier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Courier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CourierError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for CourierError.
func (e *CourierError) Is(target error) bool {
	t, ok := target.(*CourierError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewCourierError creates a new CourierError.
func NewCourierError(courier, code, message string) *CourierError {
	return &CourierError{
		Courier: courier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *CourierError) WithCause(err error) *CourierError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *CourierError) WithStatusCode(code int) *CourierError {
	e.StatusCode = code
	return e
}

// WithRetryable marks whether the caller may retry the operation.
func (e *CourierError) WithRetryable(retryable bool) *CourierError {
	e.Retryable = retryable
	return e
}

// IsRetryable reports whether err is a retryable courier error.
func IsRetryable(err error) bool {
	var ce *CourierError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return errors.Is(err, ErrRateLimitExceeded)
}

// Sentinel errors for common courier scenarios.
var (
	// ErrCourierNotFound indicates the requested courier is not registered.
	ErrCourierNotFound = errors.New("courier not found")

	// ErrNotConfigured indicates no enabled integration exists for the
	// (client, courier) pair.
	ErrNotConfigured = errors.New("delivery integration not configured")

	// ErrNotSupported indicates the courier does not support the operation.
	ErrNotSupported = errors.New("operation not supported by courier")

	// ErrInvalidRegion indicates the provider rejected the wilaya/commune.
	ErrInvalidRegion = errors.New("invalid delivery region")

	// ErrAuthenticationFailed indicates courier API authentication failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRateLimitExceeded indicates the courier rate limit was exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
