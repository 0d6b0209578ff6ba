package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientCapacity   = errors.New("insufficient capacity")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrValidation             = errors.New("validation failed")
)

// CapacityError is returned when a request exceeds the ledger's free quantity.
type CapacityError struct {
	Scope     string
	ID        string
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity on %s %s: requested %d, available %d", e.Scope, e.ID, e.Requested, e.Available)
}

func (e *CapacityError) Is(target error) bool { return target == ErrInsufficientCapacity }

type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Invalid builds an ErrInvalidTransition for guards that are not a plain status move,
// such as editing a job outside pending.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// Conflict reports that state moved under a caller that asserted what it saw.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConcurrentModification, fmt.Sprintf(format, args...))
}
