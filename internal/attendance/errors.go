package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown id or card.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an RFID card already owned by someone else.
	ErrConflict = errors.New("conflict")
	// ErrPersistence marks a storage failure.
	ErrPersistence = errors.New("persistence failure")
	// ErrUnavailable marks a missing or failing external dependency.
	ErrUnavailable = errors.New("service unavailable")
	// ErrStatsStale marks a record that was stored while its stats row
	// could not be recomputed.
	ErrStatsStale = errors.New("attendance stored, stats not updated")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// persistence wraps a storage error unless it already carries a category.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
