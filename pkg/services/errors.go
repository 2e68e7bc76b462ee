// Package services manages editor sessions: one graph store per session,
// wired to persistence, events and the execution service.
package services

import (
	"errors"
	"fmt"
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrNothingToRun     = errors.New("graph has no executable path")
)

// Missing resources (404 Not Found).
var ErrSessionNotFound = errors.New("session not found")

// Unavailable dependencies (503 Service Unavailable).
var ErrExecutionDisabled = errors.New("execution service not configured")

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrNothingToRun)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrExecutionDisabled)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
