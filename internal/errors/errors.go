// Package errors provides a lightweight structured error type (LauncherError)
// for category-based classification and user-facing remediation in the CLI.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory represents the category of a launcher error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig ErrorCategory = "config"

	// External system integration errors
	CategoryGit   ErrorCategory = "git"
	CategoryBuild ErrorCategory = "build"

	// Runtime and infrastructure errors
	CategoryDaemon  ErrorCategory = "daemon"
	CategoryRuntime ErrorCategory = "runtime"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// LauncherError is a structured error with category, severity, and an
// optional remediation hint printed for the user alongside the message.
type LauncherError struct {
	Category    ErrorCategory
	Severity    ErrorSeverity
	Message     string
	Cause       error
	Remediation []string
}

// Error implements the error interface
func (e *LauncherError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *LauncherError) Unwrap() error {
	return e.Cause
}

// UserMessage renders the message plus remediation lines for terminal output.
func (e *LauncherError) UserMessage() string {
	if len(e.Remediation) == 0 {
		return e.Message
	}
	return e.Message + "\n" + strings.Join(e.Remediation, "\n")
}

// WithRemediation appends remediation hint lines to the error.
func (e *LauncherError) WithRemediation(lines ...string) *LauncherError {
	e.Remediation = append(e.Remediation, lines...)
	return e
}

// New creates a new fatal LauncherError
func New(category ErrorCategory, message string) *LauncherError {
	return &LauncherError{
		Category: category,
		Severity: SeverityFatal,
		Message:  message,
	}
}

// Wrap creates a new fatal LauncherError that wraps an existing error
func Wrap(err error, category ErrorCategory, message string) *LauncherError {
	return &LauncherError{
		Category: category,
		Severity: SeverityFatal,
		Message:  message,
		Cause:    err,
	}
}
