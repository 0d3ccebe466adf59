package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrDependency  = errors.New("dependency unavailable")
	ErrPersistence = errors.New("persistence failure")
	ErrForbidden   = errors.New("forbidden")

	// ErrNotPending is returned to every caller that loses a status race.
	ErrNotPending = fmt.Errorf("%w: request is no longer pending", ErrConflict)

	// ErrLocationUnknown signals that the origin is the (0,0) sentinel and
	// the caller should fall back to a blood-group-only search.
	ErrLocationUnknown = errors.New("location unknown")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Persistence wraps a failed durable write. Both ErrPersistence and the
// cause stay matchable with errors.Is.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Dependency wraps a failure of a secondary collaborator (geo, push, email).
func Dependency(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDependency, name, err)
}
