package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)

// TransitionError describes a refused lifecycle transition.
type TransitionError struct {
	Op     string
	Entity string
	ID     int64
	State  string
	Err    error
}

func (e *TransitionError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s %d (state %s): %v", e.Op, e.Entity, e.ID, e.State, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func NewTransitionError(op, entity string, id int64, state string, err error) *TransitionError {
	return &TransitionError{Op: op, Entity: entity, ID: id, State: state, Err: err}
}

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
