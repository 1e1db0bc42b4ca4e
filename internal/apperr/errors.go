// Package apperr defines the error taxonomy shared by every service. Handlers
// map these to HTTP status codes through httpx.RespondError.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to classify.
var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// FieldError is a validation failure attached to one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// Validation returns a FieldError for field.
func Validation(field, msg string) error {
	return &FieldError{Field: field, Message: msg}
}

// ConflictError carries a human-readable reason for a business rule rejection.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Conflict returns a ConflictError with the given reason.
func Conflict(reason string) error {
	return &ConflictError{Reason: reason}
}

// Conflictf formats a ConflictError.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// Business rule rejections shared by the payment and holding flows.
var (
	ErrInsufficientFunds  error = &ConflictError{Reason: "insufficient funds"}
	ErrInsufficientShares error = &ConflictError{Reason: "insufficient shares"}
)
