// Package errors defines the four error kinds used throughout dsxia:
// InputMissing, MalformedRecord, ExternalUnavailable, and Internal.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// AppError represents a standardized application error.
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Severity   Severity               `json:"severity"`
}

// Severity levels for errors.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Error codes, one family per kind named in spec §7.
const (
	CodeInputMissing       = "INPUT_MISSING"
	CodeMalformedRecord    = "MALFORMED_RECORD"
	CodeExternalUnavailable = "EXTERNAL_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

// New creates a new standardized error.
func New(code, component, operation, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	return &AppError{
		Code:       code,
		Message:    message,
		Component:  component,
		Operation:  operation,
		StackTrace: fmt.Sprintf("%s:%d", file, line),
		Metadata:   make(map[string]interface{}),
		Timestamp:  time.Now(),
		Severity:   SeverityMedium,
	}
}

// NewWithSeverity creates an error with a specific severity.
func NewWithSeverity(severity Severity, code, component, operation, message string) *AppError {
	err := New(code, component, operation, message)
	err.Severity = severity
	return err
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Wrap attaches a cause to the error.
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithMetadata attaches a key/value pair to the error.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithSeverity overrides the error's severity.
func (e *AppError) WithSeverity(severity Severity) *AppError {
	e.Severity = severity
	return e
}

// IsCritical reports whether the error is fatal for the current invocation.
func (e *AppError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// IsRecoverable reports whether processing may continue past this error.
func (e *AppError) IsRecoverable() bool {
	switch e.Severity {
	case SeverityCritical, SeverityHigh:
		return false
	default:
		return true
	}
}

// ToMap converts the error into a flat map suitable for the "error" field
// of a partial analysis report (§7) or for structured logging.
func (e *AppError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code":      e.Code,
		"error_message":   e.Message,
		"error_component": e.Component,
		"error_operation": e.Operation,
		"error_severity":  string(e.Severity),
		"error_timestamp": e.Timestamp,
	}

	if e.StackTrace != "" {
		result["error_stack_trace"] = e.StackTrace
	}

	if e.Cause != nil {
		result["error_cause"] = e.Cause.Error()
	}

	for k, v := range e.Metadata {
		result[fmt.Sprintf("error_meta_%s", k)] = v
	}

	return result
}

// InputMissing reports a required file or directory that does not exist.
// Fatal for the current invocation (§7).
func InputMissing(component, operation, message string) *AppError {
	return NewWithSeverity(SeverityCritical, CodeInputMissing, component, operation, message)
}

// MalformedRecord reports a DSX block that violates the grammar. Logged at
// debug, counted, never fatal (§7) — callers should continue processing.
func MalformedRecord(component, operation, message string) *AppError {
	return NewWithSeverity(SeverityLow, CodeMalformedRecord, component, operation, message)
}

// ExternalUnavailable reports that an external collaborator (the optional
// SchemaProvider, or the directory watch) could not answer or start. An
// analysis that hits it returns this error with an empty report; no
// partial report carrying an error field is produced. Other analyses are
// unaffected (§7).
func ExternalUnavailable(component, operation, message string) *AppError {
	return NewWithSeverity(SeverityMedium, CodeExternalUnavailable, component, operation, message)
}

// Internal reports any unexpected condition (§7).
func Internal(component, operation, message string) *AppError {
	return NewWithSeverity(SeverityHigh, CodeInternal, component, operation, message)
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError converts an error to AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}

// WrapError wraps a standard error into an AppError of the Internal kind,
// passing through unchanged if it already is one.
func WrapError(err error, component, operation, message string) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return Internal(component, operation, message).Wrap(err)
}
