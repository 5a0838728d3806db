package errors

import "fmt"

// ConfigurationError creates a fatal configuration error (detected before any
// pipeline executes).
func ConfigurationError(message string) *EngineError {
	return New(CategoryConfig, SeverityFatal, message)
}

// ConfigurationErrorf creates a fatal configuration error with formatting.
func ConfigurationErrorf(format string, args ...any) *EngineError {
	return New(CategoryConfig, SeverityFatal, fmt.Sprintf(format, args...))
}

// ContentUnavailable indicates a document's backing content source could not
// be read. Surfaced to the invoking module, never retried by the engine.
func ContentUnavailable(err error, path string) *EngineError {
	return Wrap(err, CategoryContent, SeverityError, "content unavailable").
		WithContext("path", path)
}

// MissingSourceForRelativeInclude indicates a relative include path was found
// in a document that has no originating source file.
func MissingSourceForRelativeInclude(includePath string) *EngineError {
	return New(CategoryInclude, SeverityError, "relative include requires a document source").
		WithContext("include", includePath)
}

// ExternalProcessFailure indicates an external process exited outside its
// configured success predicate.
func ExternalProcessFailure(err error, command string, exitCode int) *EngineError {
	return Wrap(err, CategoryProcess, SeverityError, "external process failed").
		WithContext("command", command).
		WithContext("exit_code", exitCode)
}

// Canceled wraps a context cancellation so it keeps propagating with its
// classification intact.
func Canceled(err error) *EngineError {
	return Wrap(err, CategoryCanceled, SeverityFatal, "execution canceled")
}
