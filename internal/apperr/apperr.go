// Package apperr defines the error taxonomy shared by the services and the HTTP layer.
//
// Services wrap one of the sentinels with context using fmt.Errorf and %w;
// the HTTP layer classifies with errors.Is. Anything that wraps none of the
// sentinels is treated as a server error.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent entity.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks bad credentials or an invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrWrongPassword marks a password change with an incorrect current password.
	ErrWrongPassword = errors.New("incorrect current password")
	// ErrForbidden marks an authenticated caller acting outside its rights.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a request that clashes with existing state.
	ErrConflict = errors.New("conflict")
)

// Validation returns an ErrValidation with a formatted reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// Forbidden returns an ErrForbidden with a formatted reason.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Conflict returns an ErrConflict with a formatted reason.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// IsClientError reports whether err is one of the caller-caused kinds.
func IsClientError(err error) bool {
	for _, target := range []error{ErrValidation, ErrNotFound, ErrUnauthorized, ErrWrongPassword, ErrForbidden, ErrConflict} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
