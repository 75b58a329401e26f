package store

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileNotFound is returned when an operation names a profile the
	// user does not hold.
	ErrProfileNotFound = errors.New("profile doesn't exist")

	// ErrProfileExists is returned when a rename targets a name already in use.
	ErrProfileExists = errors.New("profile already exists")

	// ErrCapacity matches every *CapacityError.
	ErrCapacity = errors.New("profile limit reached")

	// ErrStorage wraps every failure reported by a Backend.
	ErrStorage = errors.New("storage failure")
)

// CapacityError is returned when a write would push a user past Limit
// distinct profile names.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("can't have more than %d profiles", e.Limit)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
