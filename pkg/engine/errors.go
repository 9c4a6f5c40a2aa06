// Package engine holds the error taxonomy shared by every stage of dataflow composition.
// Composition is all-or-nothing: any EngineError aborts the whole run.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass classifies a composition failure.
type ErrorClass string

const (
	// ErrorClassConfig indicates a record that fails structural validation:
	// a missing required field, an unknown field in a closed shape, or invalid YAML.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassTemplate indicates a template that references undeclared names,
	// fails to parse, or fails to evaluate.
	ErrorClassTemplate ErrorClass = "template"

	// ErrorClassIO indicates a referenced file that could not be read.
	ErrorClassIO ErrorClass = "io"

	// ErrorClassPolicy indicates a composed dataflow rejected by a blocking policy.
	ErrorClassPolicy ErrorClass = "policy"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Path is the file being processed when the error occurred, if any.
	Path string `json:"path,omitempty"`

	// Names lists offending identifiers for template errors, sorted.
	Names []string `json:"names,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if len(e.Names) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Names, ", "))
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is. Two engine errors match
// when their classes match.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewConfigError creates a new configuration error.
func NewConfigError(path, message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConfig,
		Message: message,
		Path:    path,
		Err:     err,
	}
}

// NewTemplateError creates a template error that is not tied to specific names,
// such as a syntax or evaluation failure.
func NewTemplateError(path, message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTemplate,
		Message: message,
		Path:    path,
		Err:     err,
	}
}

// NewUndeclaredNamesError creates a template error listing every name the
// template references outside of its allowed set.
func NewUndeclaredNamesError(path string, names []string) *EngineError {
	return &EngineError{
		Class:   ErrorClassTemplate,
		Message: "template references undeclared names",
		Path:    path,
		Names:   names,
	}
}

// NewIOError creates a new I/O error for the given path.
func NewIOError(path string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassIO,
		Message: "failed to read file",
		Path:    path,
		Err:     err,
	}
}

// NewPolicyError creates a new policy error.
func NewPolicyError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPolicy,
		Message: message,
		Err:     err,
	}
}

// IsConfigError returns true if the error is classified as a configuration error.
func IsConfigError(err error) bool {
	return hasClass(err, ErrorClassConfig)
}

// IsTemplateError returns true if the error is classified as a template error.
func IsTemplateError(err error) bool {
	return hasClass(err, ErrorClassTemplate)
}

// IsIOError returns true if the error is classified as an I/O error.
func IsIOError(err error) bool {
	return hasClass(err, ErrorClassIO)
}

// IsPolicyError returns true if the error is classified as a policy error.
func IsPolicyError(err error) bool {
	return hasClass(err, ErrorClassPolicy)
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// UndeclaredNames returns the offending names carried by a template error, or nil.
func UndeclaredNames(err error) []string {
	var e *EngineError
	if errors.As(err, &e) && e.Class == ErrorClassTemplate {
		return e.Names
	}
	return nil
}
