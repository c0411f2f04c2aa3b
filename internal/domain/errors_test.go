package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionErrorUnwrap(t *testing.T) {
	err := NewTransitionError("issue", "rent", 42, "requested", ErrInvalidState)

	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "issue rent 42 (state requested): invalid state", err.Error())

	var te *TransitionError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, int64(42), te.ID)
}

func TestValidationf(t *testing.T) {
	err := Validationf("end %s before start", "x")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "end x before start")
	assert.ErrorIs(t, NotFoundf("car %d", 1), ErrNotFound)
}
