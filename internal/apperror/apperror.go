// Package apperror defines the domain error taxonomy shared by services,
// repositories and handlers.
//
// Every failure the API can report is one of the sentinel errors below,
// wrapped in an *AppError that carries the human-readable message. Handlers
// use errors.Is on the sentinel to pick the HTTP status and the stable
// machine-readable code; anything that is not an *AppError is treated as an
// internal (store) error and never shown to the caller verbatim.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrBreakerTripped  = errors.New("breaker tripped")
	ErrQuotaExhausted  = errors.New("quota exhausted")
	ErrUpstream        = errors.New("upstream generation failed")
)

type AppError struct {
	Err     error  // sentinel (ErrNotFound, ErrConflict, ...)
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, kept for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
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

// Conflict reports a write that collides with the day's existing state:
// the day is already confirmed, or a racing request got there first.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Unauthenticated is returned when no identity is attached to the request.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// BreakerTripped is returned when today's image generation already failed.
// The stored provider error is quoted in the message.
func BreakerTripped(storedError string) *AppError {
	return &AppError{
		Err:     ErrBreakerTripped,
		Message: fmt.Sprintf("image generation is disabled until tomorrow: %s", storedError),
	}
}

func QuotaExhausted(limit int) *AppError {
	return &AppError{
		Err:     ErrQuotaExhausted,
		Message: fmt.Sprintf("daily limit of %d analyses reached, try again tomorrow", limit),
	}
}

// Upstream wraps a generation provider failure. The cause is kept for
// errors.Is/As and logging, the message is what the client sees.
func Upstream(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
		Cause:   cause,
	}
}
