package errors

import (
	stderrors "errors"
	"strings"
)

// ErrorCode classifies a failure for HTTP mapping and logging.
type ErrorCode string

const (
	// Request shape
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"

	// Accounts and conversations
	ErrCodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"

	// Storage
	ErrCodeDatabaseQuery ErrorCode = "DATABASE_QUERY"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code, a log message, and the text safe to show a client.
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{}, 2)
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// MarkRetryable flags a failure the caller may repeat unchanged.
func (e *AppError) MarkRetryable() *AppError {
	e.Retryable = true
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Retryable
}

// GetCode returns ErrCodeInternalError for errors outside the AppError family.
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

func GetUserMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "Internal server error"
}
