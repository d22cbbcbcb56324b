// Package apperror defines the error taxonomy shared by the repository,
// service and handler layers.
//
// Repositories return NotFound and Conflict. The service converts NotFound
// into nil/false results and wraps every other store failure in Persistence.
// Handlers map the sentinels to HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence error")
)

type AppError struct {
	Err     error  // sentinel (possibly joined with the cause)
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Persistence wraps a store failure that happened while performing op
// (e.g. "creating user"). The result matches ErrPersistence and, through
// the joined chain, whatever cause matched (ErrConflict for a duplicate key).
//
// HTTP handlers map this to 500 without exposing the message.
func Persistence(op string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrPersistence, cause),
		Message: fmt.Sprintf("Error %s: %v", op, cause),
	}
}
