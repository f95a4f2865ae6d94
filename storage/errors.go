package storage

import (
	"errors"
	"fmt"
)

// Common storage errors.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write would violate a uniqueness rule.
	ErrConflict = errors.New("entity already exists")

	// ErrInactive is returned when an operation targets an inactive entity.
	ErrInactive = errors.New("entity is inactive")

	// ErrInvalidState is returned when an entity is not in a state that
	// permits the requested transition.
	ErrInvalidState = errors.New("invalid state transition")
)

// InsufficientKarmaError is returned when a redemption costs more than the
// user's balance.
type InsufficientKarmaError struct {
	Need int
	Have int
}

func (e *InsufficientKarmaError) Error() string {
	return fmt.Sprintf("Insufficient karma points. Need %d, have %d", e.Need, e.Have)
}
