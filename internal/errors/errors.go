// Package errors defines the application error type shared by the
// repositories, the use cases and the HTTP adapter.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a unique key is already taken.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnavailable indicates a dependency cannot accept work right now.
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError is a structured error with a code, message and optional cause.
// It supports errors.Is and errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the column or input field involved, when known.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(field, message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message, Field: field}
}

func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

func Unavailable(message string) *AppError {
	return &AppError{Code: ErrCodeUnavailable, Message: message}
}

func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps err with an AppError, preserving the cause. A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool    { return isCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool    { return isCode(err, ErrCodeConflict) }
func IsValidation(err error) bool  { return isCode(err, ErrCodeValidation) }
func IsUnavailable(err error) bool { return isCode(err, ErrCodeUnavailable) }

// GetCode returns the ErrorCode of err, or "" when err is not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of err, or "" when unset.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
