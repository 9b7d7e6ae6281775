package domain

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Lookup errors
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user already exists")

	// Input errors
	ErrInvalidInput = errors.New("invalid input")

	// Completion errors
	ErrAlreadyCompleted = errors.New("habit already completed for this date")
	ErrPartialUpdate    = errors.New("completion partially applied")

	// Job errors
	ErrJobLocked = errors.New("job is not unlocked")

	// Catalog errors
	ErrCatalogInvalid = errors.New("catalog is invalid")
)

// ─── Typed Errors ───────────────────────────────────────────────────────────

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidInputError names the rejected field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// AlreadyCompletedError reports a second completion of the same habit on
// the same calendar date. Nothing was written.
type AlreadyCompletedError struct {
	HabitID string
	Date    civil.Date
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("habit %s already completed on %s", e.HabitID, e.Date)
}

func (e *AlreadyCompletedError) Is(target error) bool { return target == ErrAlreadyCompleted }

// PartialUpdateError reports a failure after the first write of a
// completion. RolledBack tells whether the earlier writes were undone.
type PartialUpdateError struct {
	Step       string
	RolledBack bool
	Err        error
}

func (e *PartialUpdateError) Error() string {
	state := "not rolled back"
	if e.RolledBack {
		state = "rolled back"
	}
	return fmt.Sprintf("completion failed at %s (%s): %v", e.Step, state, e.Err)
}

func (e *PartialUpdateError) Unwrap() error { return e.Err }

func (e *PartialUpdateError) Is(target error) bool { return target == ErrPartialUpdate }
