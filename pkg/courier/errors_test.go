package courier_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dzexpress/shipping/pkg/courier"
)

func TestCourierError_Error(t *testing.T) {
	err := courier.NewCourierError("yalidine", "INVALID_COMMUNE", "Commune not found")
	assert.Equal(t, "yalidine error (INVALID_COMMUNE): Commune not found", err.Error())
}

func TestCourierError_ErrorWithCause(t *testing.T) {
	cause := errors.New("network timeout")
	err := courier.NewCourierError("yalidine", "API_ERROR", "API call failed").WithCause(cause)
	assert.Contains(t, err.Error(), "API call failed")
	assert.Contains(t, err.Error(), "network timeout")
}

func TestCourierError_Unwrap(t *testing.T) {
	cause := errors.New("network timeout")
	err := courier.NewCourierError("noest", "API_ERROR", "API call failed").WithCause(cause)
	assert.True(t, errors.Is(err, cause))
}

func TestCourierError_Is(t *testing.T) {
	err1 := courier.NewCourierError("yalidine", "INVALID_COMMUNE", "Commune not found")
	err2 := courier.NewCourierError("zr-express", "INVALID_COMMUNE", "Different message")

	// Same code should match
	assert.True(t, errors.Is(err1, err2))
}

func TestCourierError_IsNot(t *testing.T) {
	err1 := courier.NewCourierError("yalidine", "INVALID_COMMUNE", "Commune not found")
	err2 := courier.NewCourierError("yalidine", "DIFFERENT_CODE", "Different error")

	// Different codes should not match
	assert.False(t, errors.Is(err1, err2))
}

func TestCourierError_WithStatusCode(t *testing.T) {
	err := courier.NewCourierError("ecotrack", "AUTH_ERROR", "Unauthorized").WithStatusCode(401)
	assert.Equal(t, 401, err.StatusCode)
}

func TestCourierError_WithRetryable(t *testing.T) {
	err := courier.NewCourierError("ecotrack", "RATE_LIMIT", "Too many requests").WithRetryable(true)
	assert.True(t, err.Retryable)
}

func TestIsRetryable(t *testing.T) {
	retryable := courier.NewCourierError("ecotrack", "RATE_LIMIT", "Too many requests").WithRetryable(true)
	assert.True(t, courier.IsRetryable(retryable))

	notRetryable := courier.NewCourierError("ecotrack", "INVALID_COMMUNE", "Commune not found")
	assert.False(t, courier.IsRetryable(notRetryable))

	assert.True(t, courier.IsRetryable(courier.ErrRateLimitExceeded))
	assert.False(t, courier.IsRetryable(errors.New("plain error")))
	assert.False(t, courier.IsRetryable(nil))
}
