package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the service, storage and HTTP layers.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyVoted    = errors.New("user already voted on this activity")
	ErrVotingClosed    = errors.New("voting is closed for this activity")
	ErrConflict        = errors.New("conflict")
	ErrExternalService = errors.New("external service failure")
)

// FieldError describes one invalid field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists field failures and unwraps to ErrInvalidInput.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}
