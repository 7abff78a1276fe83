package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      New(ErrCodeValidationFailed, "bad email"),
			expected: "VALIDATION_FAILED: bad email",
		},
		{
			name:     "with cause",
			err:      Wrap(stderrors.New("disk full"), ErrCodeDatabaseQuery, "insert failed"),
			expected: "DATABASE_QUERY: insert failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("root")
	err := Wrap(cause, ErrCodeInternalError, "outer")

	assert.True(t, stderrors.Is(err, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeNotFound, "missing").
		WithContext("resource", "user").
		WithContext("identifier", "42")

	assert.Equal(t, "user", err.Context["resource"])
	assert.Equal(t, "42", err.Context["identifier"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Wrap(stderrors.New("busy"), ErrCodeDatabaseQuery, "open").MarkRetryable()))
	assert.False(t, IsRetryable(New(ErrCodeValidationFailed, "nope")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestGetCode_LooksThroughWrapping(t *testing.T) {
	inner := New(ErrCodeAuthentication, "bad token")
	wrapped := fmt.Errorf("handler: %w", inner)

	assert.Equal(t, ErrCodeAuthentication, GetCode(wrapped))
	assert.Equal(t, ErrCodeInternalError, GetCode(stderrors.New("plain")))
}

func TestGetUserMessage(t *testing.T) {
	err := New(ErrCodeNotFound, "user 7 missing").WithUserMessage("User not found")
	assert.Equal(t, "User not found", GetUserMessage(err))
	assert.Equal(t, "Internal server error", GetUserMessage(New(ErrCodeInternalError, "x")))
	assert.Equal(t, "Internal server error", GetUserMessage(stderrors.New("plain")))
}

func TestAs(t *testing.T) {
	appErr, ok := As(fmt.Errorf("wrap: %w", New(ErrCodeTimeout, "slow")))
	require.True(t, ok)
	assert.Equal(t, ErrCodeTimeout, appErr.Code)

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
}
