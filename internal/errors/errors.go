// Package errors defines the structured application error used across the
// medscribe pipeline, job store, and collaborator adapters.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeInput indicates invalid caller input (missing file, bad format, oversized audio).
	ErrCodeInput ErrorCode = "input"
	// ErrCodeNotFound indicates a resource was not found (expired or unknown job).
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeTranscription indicates the transcription collaborator failed.
	ErrCodeTranscription ErrorCode = "transcription"
	// ErrCodeGeneration indicates the note generation collaborator failed.
	ErrCodeGeneration ErrorCode = "generation"
	// ErrCodeValidation indicates invalid data shapes or parameters.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError is a structured application error with a code, message, an
// optional cause, a free-form detail bag, and an optional remediation hint.
// It supports error wrapping and unwrapping for use with errors.Is/As.
type AppError struct {
	// Code categorizes the error type.
	Code ErrorCode
	// Message is a human-readable error message.
	Message string
	// Cause is the underlying error (optional).
	Cause error
	// Details carries structured context for job records and API payloads
	// (offending path, endpoint, model name).
	Details map[string]any
	// Hint is an optional remediation hint surfaced alongside the message.
	Hint string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns the error with one detail key set. It mutates and
// returns the receiver so constructors chain naturally.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 2)
	}
	e.Details[key] = value
	return e
}

// WithHint sets the remediation hint.
func (e *AppError) WithHint(hint string) *AppError {
	e.Hint = hint
	return e
}

// Input creates a new Input error.
func Input(message string) *AppError {
	return &AppError{Code: ErrCodeInput, Message: message}
}

// Inputf creates a new Input error with formatted message.
func Inputf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInput, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Transcription creates a new Transcription error.
func Transcription(message string) *AppError {
	return &AppError{Code: ErrCodeTranscription, Message: message}
}

// Transcriptionf creates a new Transcription error with formatted message.
func Transcriptionf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeTranscription, Message: fmt.Sprintf(format, args...)}
}

// Generation creates a new Generation error.
func Generation(message string) *AppError {
	return &AppError{Code: ErrCodeGeneration, Message: message}
}

// Generationf creates a new Generation error with formatted message.
func Generationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeGeneration, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsInput checks if an error is an Input error.
func IsInput(err error) bool {
	return isCode(err, ErrCodeInput)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsTranscription checks if an error is a Transcription error.
func IsTranscription(err error) bool {
	return isCode(err, ErrCodeTranscription)
}

// IsGeneration checks if an error is a Generation error.
func IsGeneration(err error) bool {
	return isCode(err, ErrCodeGeneration)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// AsApp extracts the AppError from err, or nil when err carries none.
func AsApp(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
