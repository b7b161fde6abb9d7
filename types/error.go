package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Collaborator error codes
const (
	ErrVectorSearch    ErrorCode = "VECTOR_SEARCH"
	ErrWebSearch       ErrorCode = "WEB_SEARCH"
	ErrGeneration      ErrorCode = "GENERATION"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
)

// Pipeline error codes
const (
	ErrInvalidQuery    ErrorCode = "INVALID_QUERY"
	ErrPhaseFailed     ErrorCode = "PHASE_FAILED"
	ErrContextOverflow ErrorCode = "CONTEXT_OVERFLOW"
	ErrCancelled       ErrorCode = "CANCELLED"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Phase     string    `json:"phase,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithPhase records the pipeline phase where the error occurred.
func (e *Error) WithPhase(phase string) *Error {
	e.Phase = phase
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
