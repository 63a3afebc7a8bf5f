package engine

import (
	"errors"
	"fmt"

	"github.com/openfroyo/condaenv/pkg/runner"
)

// ErrorClass classifies why a reconciliation failed.
type ErrorClass string

const (
	// ErrorClassLaunch indicates the package manager could not be started at all.
	// Examples: missing executable, permission denied, lost SSH connection.
	ErrorClassLaunch ErrorClass = "launch"

	// ErrorClassTool indicates the package manager ran but reported failure, through
	// "success": false or a non-zero exit during convergence.
	ErrorClassTool ErrorClass = "tool"

	// ErrorClassInconsistent indicates two package manager queries disagree, e.g. a valid
	// environment whose prefix cannot be resolved.
	ErrorClassInconsistent ErrorClass = "inconsistent"

	// ErrorClassInput indicates invalid invocation parameters.
	ErrorClassInput ErrorClass = "input"

	// ErrorClassPolicy indicates a policy denied the planned action.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassInternal indicates a bug, e.g. a recovered panic.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Command is the argument vector that was being run, if any.
	Command []string `json:"command,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if len(e.Command) > 0 {
		msg += fmt.Sprintf(" (command=%s)", runner.CommandLine(e.Command))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewLaunchError creates a new launch error.
func NewLaunchError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassLaunch, Message: message, Err: err}
}

// NewToolError creates a new tool-reported error.
func NewToolError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTool, Message: message, Err: err}
}

// NewInconsistentStateError creates a new inconsistent-state error.
func NewInconsistentStateError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInconsistent, Message: message, Err: err}
}

// NewInputError creates a new invalid-input error.
func NewInputError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInput, Message: message, Err: err}
}

// NewPolicyError creates a new policy-denied error.
func NewPolicyError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPolicy, Message: message, Err: err}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInternal, Message: message, Err: err}
}

// WithCommand adds the command being run to an error.
func (e *EngineError) WithCommand(argv []string) *EngineError {
	e.Command = argv
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

// ClassOf returns the class of err, or an empty class when err is not an *EngineError.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsLaunchFailure returns true if the error is classified as a launch failure.
func IsLaunchFailure(err error) bool {
	return ClassOf(err) == ErrorClassLaunch
}

// IsToolReported returns true if the error is classified as tool-reported.
func IsToolReported(err error) bool {
	return ClassOf(err) == ErrorClassTool
}

// IsInconsistentState returns true if the error is classified as inconsistent state.
func IsInconsistentState(err error) bool {
	return ClassOf(err) == ErrorClassInconsistent
}

// IsInvalidInput returns true if the error is classified as invalid input.
func IsInvalidInput(err error) bool {
	return ClassOf(err) == ErrorClassInput
}

// IsPolicyDenied returns true if the error is classified as a policy denial.
func IsPolicyDenied(err error) bool {
	return ClassOf(err) == ErrorClassPolicy
}

// Common error codes.
const (
	ErrCodeNameAndPrefix    = "NAME_AND_PREFIX"
	ErrCodeSpecWrite        = "SPEC_WRITE_FAILED"
	ErrCodeConvergence      = "CONVERGENCE_FAILED"
	ErrCodePrefixProbe      = "PREFIX_PROBE_FAILED"
	ErrCodePrefixUnresolved = "PREFIX_UNRESOLVED"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodePolicyEval       = "POLICY_EVALUATION_FAILED"
	ErrCodePanic            = "PANIC"
)
