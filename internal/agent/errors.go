package agent

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/hive/pkg/models"
)

// Common sentinel errors for agent construction.
var (
	// ErrNoClient indicates no LLM client is configured
	ErrNoClient = errors.New("no LLM client configured")

	// ErrNilTool indicates a nil tool was passed to the registry
	ErrNilTool = errors.New("tool is nil")
)

// Error is the typed failure surfaced by the runtime. Code is drawn from the
// closed taxonomy in models; Step is set when the failure occurred inside a
// loop step.
type Error struct {
	// Code categorizes the failure.
	Code models.ErrorCode

	// Message is the human-readable error message.
	Message string

	// Step is the 1-based loop step where the failure occurred, when known.
	Step int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Step > 0 {
		msg = fmt.Sprintf("%s (step %d)", msg, e.Step)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code models.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code models.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep sets the loop step where the failure occurred.
func (e *Error) WithStep(step int) *Error {
	e.Step = step
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// AsError extracts an *Error from an error chain using errors.As.
func AsError(err error) (*Error, bool) {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code carried by err, or the empty code when err
// is not (and does not wrap) an *Error.
func CodeOf(err error) models.ErrorCode {
	if agentErr, ok := AsError(err); ok {
		return agentErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code models.ErrorCode) bool {
	return CodeOf(err) == code
}
