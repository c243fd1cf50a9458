// Package errors provides the standardized error taxonomy for backend calls and client-side state sync.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Remote call failures
	ErrCodeTransportFault             ErrorCode = "TRANSPORT_FAULT"
	ErrCodeBackendRejection           ErrorCode = "BACKEND_REJECTION"
	ErrCodeBackendRejectionUnlabelled ErrorCode = "BACKEND_REJECTION_UNLABELLED"
	ErrCodeMalformedResponse          ErrorCode = "MALFORMED_RESPONSE"

	// Local state failures
	ErrCodeStorageReadFailed  ErrorCode = "STORAGE_READ_FAILED"
	ErrCodeStorageWriteFailed ErrorCode = "STORAGE_WRITE_FAILED"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"

	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured client error.
// Message is the human-readable text shown to the user; Details carries the
// developer-facing cause.
type StandardError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	Retryable  bool      `json:"retryable"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return e.Message
}

// String is the log-friendly form including the code.
func (e *StandardError) String() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// newError fills the fields every constructor shares. Retryable follows
// IsRetryableErrorCode.
func newError(code ErrorCode, message, details string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportFaultError wraps a fault where no usable response was obtained.
func NewTransportFaultError(err error) *StandardError {
	return newError(ErrCodeTransportFault, err.Error(), err.Error())
}

// NewBackendRejectionError carries the backend's own error text verbatim.
func NewBackendRejectionError(status int, message string) *StandardError {
	e := newError(ErrCodeBackendRejection, message, "")
	e.StatusCode = status
	return e
}

// NewUnlabelledRejectionError is used when a non-2xx body has no usable error field.
// Only server-side statuses are worth retrying.
func NewUnlabelledRejectionError(status int, fallback, body string) *StandardError {
	e := newError(ErrCodeBackendRejectionUnlabelled, fallback, truncate(body, 512))
	e.StatusCode = status
	e.Retryable = e.Retryable && status >= 500
	return e
}

// NewMalformedResponseError signals a 2xx payload with the wrong shape.
func NewMalformedResponseError(message, details string) *StandardError {
	return newError(ErrCodeMalformedResponse, message, details)
}

func NewStorageReadError(key string, err error) *StandardError {
	return newError(ErrCodeStorageReadFailed, "Failed to read client storage",
		fmt.Sprintf("key: %s, error: %s", key, err.Error()))
}

func NewStorageWriteError(key string, err error) *StandardError {
	return newError(ErrCodeStorageWriteFailed, "Failed to write client storage",
		fmt.Sprintf("key: %s, error: %s", key, err.Error()))
}

func NewNotAuthenticatedError(details string) *StandardError {
	return newError(ErrCodeNotAuthenticated, "Not authenticated", details)
}

// NewInvalidInputError rejects caller input before any backend call. The
// message is shown to the user as is.
func NewInvalidInputError(message string) *StandardError {
	return newError(ErrCodeInvalidInput, message, "")
}

func NewInvalidConfigError(details string) *StandardError {
	return newError(ErrCodeInvalidConfig, "Invalid client configuration", details)
}

// ==========================
// 3. Utility Functions
// ==========================

// As extracts a *StandardError from err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if stdErr, ok := As(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error())
}

// IsRetryableErrorCode reports whether the user retrying the triggering action may help.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeTransportFault, ErrCodeBackendRejectionUnlabelled:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TRANSPORT"):
		return "TRANSPORT"
	case strings.Contains(codeStr, "BACKEND") || strings.Contains(codeStr, "RESPONSE"):
		return "BACKEND"
	case strings.Contains(codeStr, "STORAGE"):
		return "STORAGE"
	case strings.Contains(codeStr, "AUTHENTICATED"):
		return "AUTH"
	case strings.Contains(codeStr, "CONFIG"):
		return "CONFIG"
	case strings.Contains(codeStr, "INPUT"):
		return "INPUT"
	default:
		return "OTHER"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
