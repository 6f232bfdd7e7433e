package services

import (
	"errors"
	"fmt"

	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/validators"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrResourceConflict  = errors.New("resource conflict")
	ErrNoCapacity        = errors.New("no capacity available")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = interfaces.ErrNotFound
)

// ValidationError carries field level detail and matches ErrValidation.
type ValidationError struct {
	Errors validators.ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Errors.Error())
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(errs validators.ValidationErrors) error {
	return &ValidationError{Errors: errs}
}

// validate runs struct tag validation and wraps any failure.
func validate(v interface{}) error {
	if errs := validators.ValidateStruct(v); len(errs) > 0 {
		return newValidationError(errs)
	}
	return nil
}

func invalidTransition(entityType, from, to string) error {
	return fmt.Errorf("%s cannot move from %s to %s: %w", entityType, from, to, ErrInvalidTransition)
}

// conflict wraps a version conflict so callers can match either sentinel.
func conflict(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, ErrResourceConflict, err)
}
