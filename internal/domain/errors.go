package domain

import "fmt"

// ErrorCode classifies pipeline errors by intent rather than by origin type.
type ErrorCode string

const (
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeUnknownSource ErrorCode = "UNKNOWN_SOURCE"
	ErrCodeRetryable     ErrorCode = "RETRYABLE_ERROR"
	ErrCodePermanent     ErrorCode = "PERMANENT_FAILURE"
	ErrCodeStorage       ErrorCode = "STORAGE_ERROR"
)

// AppError is the error value exchanged between pipeline stages.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewInvalidInput(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

func NewUnknownSource(source string) *AppError {
	return &AppError{Code: ErrCodeUnknownSource, Message: "unknown event type: " + source}
}

func NewRetryable(message string, err error) *AppError {
	return &AppError{Code: ErrCodeRetryable, Message: message, Err: err}
}

func NewPermanent(message string, err error) *AppError {
	return &AppError{Code: ErrCodePermanent, Message: message, Err: err}
}

func NewStorage(message string, err error) *AppError {
	return &AppError{Code: ErrCodeStorage, Message: message, Err: err}
}

// IsRetryable reports whether an error should be retried with backoff.
// Unknown error values default to retryable, matching the broker-redelivery
// contract for unclassified failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	appErr, ok := err.(*AppError)
	if !ok {
		return true
	}
	switch appErr.Code {
	case ErrCodeRetryable, ErrCodeStorage:
		return true
	}
	return false
}
