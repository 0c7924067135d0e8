// Package retry classifies gateway errors as recoverable or not. The
// polling loop owns its own retry policy; this package only answers
// whether another attempt could possibly succeed.
package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable checks if a failed gateway call is worth attempting again.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	// Check if error explicitly implements RecoverableError interface
	var recoverable RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.IsRecoverable()
	}

	return isRecoverableByType(err)
}

// isRecoverableByType applies heuristics to determine if an error is recoverable
func isRecoverableByType(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true // Timeouts on a single poll are transient
	case errors.Is(err, context.Canceled):
		return false // Cancellation is intentional, don't retry
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	// URL errors wrap the underlying transport failure
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRecoverableByType(urlErr.Err)
	}

	// Fall back to matching common transient failure messages
	errStr := strings.ToLower(err.Error())
	recoverablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"rate limit",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"gateway timeout",
	}
	for _, pattern := range recoverablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string {
	return e.err.Error()
}

func (e *recoverableError) IsRecoverable() bool {
	return true
}

func (e *recoverableError) Unwrap() error {
	return e.err
}

// NewRecoverableError marks an error as safe to retry.
func NewRecoverableError(err error) *recoverableError {
	return &recoverableError{err: err}
}

// NonRecoverableError represents an error that should not be retried
type NonRecoverableError struct {
	err error
}

func (e *NonRecoverableError) Error() string {
	return e.err.Error()
}

func (e *NonRecoverableError) IsRecoverable() bool {
	return false
}

func (e *NonRecoverableError) Unwrap() error {
	return e.err
}

// NewNonRecoverableError marks an error as pointless to retry.
func NewNonRecoverableError(err error) *NonRecoverableError {
	return &NonRecoverableError{err: err}
}
