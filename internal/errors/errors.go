// Package errors provides a lightweight structured error type (EngineError)
// for category-based classification across the pipeline engine.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of an engine error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Content and module execution errors
	CategoryContent ErrorCategory = "content"
	CategoryInclude ErrorCategory = "include"
	CategoryProcess ErrorCategory = "process"
	CategoryModule  ErrorCategory = "module"

	// Runtime and infrastructure errors
	CategoryCache    ErrorCategory = "cache"
	CategoryCanceled ErrorCategory = "canceled"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// EngineError is a structured error with category, severity, and context
type EngineError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for EngineError
type ContextFields map[string]any

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new EngineError
func New(category ErrorCategory, severity ErrorSeverity, message string) *EngineError {
	return &EngineError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new EngineError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *EngineError {
	return &EngineError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error (anywhere in its chain) belongs to a category
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if no EngineError is found in the chain.
func GetCategory(err error) ErrorCategory {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	return CategoryInternal
}

// IsCanceled reports whether the error represents cancellation, either as an
// engine error or a raw context error.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if IsCategory(err, CategoryCanceled) {
		return true
	}
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
