package entity

import (
	"errors"
	"fmt"
)

// Common entity error types
var (
	// ErrNotFound is returned when a record lookup finds nothing
	ErrNotFound = errors.New("record not found")

	// ErrSessionClosed is returned when a persistence session is used after
	// it has been closed
	ErrSessionClosed = errors.New("session is already closed; use a new session for each request")
)

// DefinitionError reports an invalid entity declaration. Definition errors
// surface while entities register, before any application starts, and abort
// startup rather than being handled at runtime.
type DefinitionError struct {
	Entity string
	Reason string
}

// Error implements the error interface
func (e *DefinitionError) Error() string {
	if e.Entity == "" {
		return "invalid definition: " + e.Reason
	}
	return fmt.Sprintf("invalid definition for entity %s: %s", e.Entity, e.Reason)
}

func defErrorf(entity, format string, args ...interface{}) *DefinitionError {
	return &DefinitionError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// IsDefinitionError returns true if the error is a DefinitionError
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}

// NotFoundError identifies the record a lookup missed. It unwraps to
// ErrNotFound so callers can match with errors.Is.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %s not found", e.Entity, e.ID)
}

// Unwrap makes NotFoundError match ErrNotFound
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a NotFoundError for the given entity and id
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound returns true if the error indicates a missing record
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidationError contains one or more field-level validation failures
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a validation failure on a specific field
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", ve.Errors[0].Field, ve.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed: %d errors", len(ve.Errors))
}

// Add appends a field failure to the error
func (ve *ValidationError) Add(field, message string) {
	ve.Errors = append(ve.Errors, FieldError{Field: field, Message: message})
}

// NewValidationError creates a ValidationError with a single field failure
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// IsValidationError returns true if the error is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
