// Package engine provides the validation orchestrator: it owns the
// catalog, runs the validation phases in a fixed order, aggregates
// diagnostics, and manages the result cache and bounded history.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an engine-level error.
// Invalid configurations are never errors; they are diagnostics inside
// a result. Errors are reserved for failures of the engine itself.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed
	// on retry. Examples: catalog source briefly unreadable.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a state conflict, such as a reload
	// racing a shutdown.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid engine options, use after shutdown.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// ValidationID is the validation run that hit the error, if any.
	ValidationID string `json:"validation_id,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.ValidationID != "" {
		return fmt.Sprintf("[%s] %s (validation=%s): %s",
			e.Class, e.Message, e.ValidationID, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithValidation adds the validation run ID to an error.
func (e *EngineError) WithValidation(validationID string) *EngineError {
	e.ValidationID = validationID
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsConflict(err)
}

// IsNotReady returns true if the error reports an engine that has not
// been initialized or has been shut down.
func IsNotReady(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == ErrCodeNotReady
	}
	return false
}

// Common error codes.
const (
	ErrCodeNotReady    = "ENGINE_NOT_READY"
	ErrCodeOptions     = "INVALID_OPTIONS"
	ErrCodeCatalogLoad = "CATALOG_LOAD"
	ErrCodeShutdown    = "SHUTDOWN"
	ErrCodeCancelled   = "CANCELLED"
	ErrCodeInternal    = "INTERNAL_ERROR"
)
