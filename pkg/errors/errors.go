// Package errors provides structured error handling for eventrelay.
// Every failure that crosses a component boundary carries a typed
// category so the run orchestrator can decide whether to absorb it,
// retry it, or fail the run.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents missing or invalid configuration (fatal, pre-run)
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeSecretInvalid represents a stored secret that is empty or a placeholder
	ErrorTypeSecretInvalid ErrorType = "secret_invalid"
	// ErrorTypeSecretUnavailable represents a secret store read failure or missing key
	ErrorTypeSecretUnavailable ErrorType = "secret_unavailable"
	// ErrorTypeSecretWrite represents a secret store write failure
	ErrorTypeSecretWrite ErrorType = "secret_write"
	// ErrorTypeSourceUnreachable represents a source endpoint transport failure
	ErrorTypeSourceUnreachable ErrorType = "source_unreachable"
	// ErrorTypeSourceProtocol represents a malformed or non-success source response
	ErrorTypeSourceProtocol ErrorType = "source_protocol"
	// ErrorTypeMalformedRow represents a row missing required fields
	ErrorTypeMalformedRow ErrorType = "malformed_row"
	// ErrorTypeDeliveryRejected represents a terminal non-200 sink response
	ErrorTypeDeliveryRejected ErrorType = "delivery_rejected"
	// ErrorTypeDeliveryUnavailable represents exhausted delivery retries
	ErrorTypeDeliveryUnavailable ErrorType = "delivery_unavailable"
	// ErrorTypeConnection represents transport-level connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit represents rate limit (HTTP 429) errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail extracts a detail value attached with WithDetail from anywhere in
// the error chain; nil when absent or untyped.
func Detail(err error, key string) interface{} {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	return e.Details[key]
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// IsRetryable returns true if the error represents a transient
// transport-level condition worth retrying within a single attempt.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the error's type, or ErrorTypeInternal for untyped errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}
