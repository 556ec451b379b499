// Package shared contains common domain types and errors that are used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
// Every failure surfaced by a repository, handler or the sync boundary
// resolves to exactly one of the four kinds below.
var (
	// ErrValidation marks malformed input rejected before any computation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced challenge, invite code, participant or user that does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict marks a state conflict: double completion, duplicate key.
	ErrConflict = errors.New("conflict")

	// ErrTransientSync marks an unavailable store or network during reconciliation.
	ErrTransientSync = errors.New("transient sync error")
)

// Narrower sentinels. Each one wraps a base kind so errors.Is matches both.
var (
	ErrAlreadyExists = fmt.Errorf("%w: entity already exists", ErrConflict)
	ErrInvalidState  = fmt.Errorf("%w: invalid state", ErrConflict)

	ErrInvalidID       = fmt.Errorf("%w: invalid ID", ErrValidation)
	ErrEmptyValue      = fmt.Errorf("%w: value cannot be empty", ErrValidation)
	ErrValueOutOfRange = fmt.Errorf("%w: value out of range", ErrValidation)
	ErrInvalidFormat   = fmt.Errorf("%w: invalid format", ErrValidation)

	ErrServiceUnavailable = fmt.Errorf("%w: service unavailable", ErrTransientSync)
	ErrTimeout            = fmt.Errorf("%w: operation timeout", ErrTransientSync)
	ErrRateLimited        = fmt.Errorf("%w: rate limited", ErrTransientSync)
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "challenge", "checkin", "sync"
	Op      string // Operation that failed, e.g., "Join", "Complete"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new DomainError.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Validationf is a shorthand for validation failures with a formatted message.
func Validationf(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransient checks if the error is temporary and the operation may succeed later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientSync)
}

// IsDefinitive reports whether the store has authoritatively rejected an
// operation. Only definitive failures may revert optimistic state.
func IsDefinitive(err error) bool {
	if err == nil {
		return false
	}
	return IsValidation(err) || IsNotFound(err) || IsConflict(err)
}

// KindOf returns the base kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrTransientSync} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
