package runner

import (
	"context"
	"errors"
	"fmt"
)

// Error type constants for classification and matching
const (
	// ErrorTypeAll acts as a wildcard that matches any error except
	// cancellation
	ErrorTypeAll = "all"

	// ErrorTypeValidation indicates a graph failed pre-submission
	// validation. Fully local; the remote gateway is never reached.
	ErrorTypeValidation = "validation_error"

	// ErrorTypeSubmit indicates the remote engine rejected or never
	// received the initial submission. Fatal to the session.
	ErrorTypeSubmit = "submit_error"

	// ErrorTypeFetch indicates a polling request failed. Recoverable;
	// the loop continues.
	ErrorTypeFetch = "fetch_error"

	// ErrorTypeNode indicates the remote execution reported a node
	// failure. Non-fatal to polling, recorded per node.
	ErrorTypeNode = "node_error"

	// ErrorTypeCanceled indicates a user-driven stop. Not an error in
	// final messaging, but must be distinguishable from completion and
	// from failures.
	ErrorTypeCanceled = "canceled"
)

// RunError represents a structured error with classification.
// It supports Go's error wrapping patterns with Unwrap() method.
type RunError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Details any    `json:"details,omitempty"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As
func (e *RunError) Unwrap() error {
	return e.Wrapped
}

// ErrorOutput is the structured, user-presentable form of an error. All
// error text shown to the user passes through here; raw internal error
// objects never do.
type ErrorOutput struct {
	Error   string `json:"Error"`
	Cause   string `json:"Cause"`
	Details any    `json:"Details,omitempty"`
}

// NewRunError creates a new RunError with the specified type and cause.
func NewRunError(errorType, cause string) *RunError {
	return &RunError{Type: errorType, Cause: cause}
}

// NewValidationError wraps a pre-submission validation failure.
func NewValidationError(err error) *RunError {
	return &RunError{Type: ErrorTypeValidation, Cause: err.Error(), Wrapped: err}
}

// NewSubmitError wraps a failed submission.
func NewSubmitError(err error) *RunError {
	return &RunError{Type: ErrorTypeSubmit, Cause: err.Error(), Wrapped: err}
}

// NewFetchError wraps a failed polling request.
func NewFetchError(err error) *RunError {
	return &RunError{Type: ErrorTypeFetch, Cause: err.Error(), Wrapped: err}
}

// ClassifyError attempts to classify a regular error into a RunError
func ClassifyError(err error) *RunError {
	// If the error is already a RunError, return it
	var runError *RunError
	if errors.As(err, &runError) {
		return runError
	}
	// Cancellation is a user- or caller-driven exit, not a failure
	if errors.Is(err, context.Canceled) {
		return &RunError{
			Type:    ErrorTypeCanceled,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	// Anything else arriving unclassified comes from the polling loop
	return &RunError{
		Type:    ErrorTypeFetch,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type pattern
func MatchesErrorType(err error, errorType string) bool {
	rErr := ClassifyError(err)
	// Cancellation is only matched by the ErrorTypeCanceled pattern
	if rErr.Type == ErrorTypeCanceled {
		return errorType == ErrorTypeCanceled
	}
	if errorType == ErrorTypeAll {
		return true
	}
	return rErr.Type == errorType
}

// ToErrorOutput converts a RunError to ErrorOutput for user-facing surfaces
func (e *RunError) ToErrorOutput() ErrorOutput {
	return ErrorOutput{
		Error:   e.Type,
		Cause:   e.Cause,
		Details: e.Details,
	}
}

// UserMessage returns a short human-readable description of the error.
func (e *RunError) UserMessage() string {
	switch e.Type {
	case ErrorTypeValidation:
		return fmt.Sprintf("The workflow can't run yet: %s", e.Cause)
	case ErrorTypeSubmit:
		return fmt.Sprintf("The run could not be started: %s", e.Cause)
	case ErrorTypeFetch:
		return fmt.Sprintf("Couldn't reach the execution engine: %s", e.Cause)
	case ErrorTypeCanceled:
		return "The run was stopped."
	default:
		return e.Cause
	}
}
