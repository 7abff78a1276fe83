package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewMissingFieldsError mirrors the message clients already show for
// incomplete forms.
func NewMissingFieldsError(fields ...string) *AppError {
	return New(ErrCodeInvalidInput, "required fields missing").
		WithContext("fields", fields).
		WithUserMessage("Please fill all required fields")
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError wraps a failed store call. A deadline or cancellation is
// reported as a retryable timeout.
func NewDatabaseError(operation string, err error) *AppError {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return Wrap(err, ErrCodeTimeout, fmt.Sprintf("database %s timed out", operation)).
			WithContext("operation", operation).
			WithUserMessage("Request timed out, please retry").
			MarkRetryable()
	}
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewAlreadyExistsError reports a uniqueness conflict on resource.
func NewAlreadyExistsError(resource string) *AppError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource)).
		WithContext("resource", resource).
		WithUserMessage(fmt.Sprintf("%s already exists", resource))
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeAlreadyExists:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeDatabaseQuery, ErrCodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the body written for failed requests. Message sits at
// the top level because browser clients read it directly.
type HTTPErrorResponse struct {
	Message   string                 `json:"message"`
	Code      ErrorCode              `json:"code"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		Message:   GetUserMessage(err),
		Code:      GetCode(err),
		RequestID: requestID,
	}

	appErr, ok := As(err)
	if !ok || len(appErr.Context) == 0 {
		return response
	}

	publicContext := make(map[string]interface{})
	for k, v := range appErr.Context {
		// Exclude sensitive fields from HTTP responses
		if k == "password" || k == "token" || k == "secret" || k == "value" {
			continue
		}
		publicContext[k] = v
	}
	if len(publicContext) > 0 {
		response.Context = publicContext
	}
	return response
}
