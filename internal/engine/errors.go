package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("rule not found")
	ErrConflict = errors.New("conflict")
)

// NotFoundError names a rule id that is absent from storage.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("rule not found: %s", e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError is returned when deleting a rule that a deployment references.
type ConflictError struct {
	ID      string
	Address string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot delete deployed rule %s (deployed at %s)", e.ID, e.Address)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
