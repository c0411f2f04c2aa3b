package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRentStates(t *testing.T) {
	assert.Equal(t, []RentState{RentApproved, RentIssued}, BlockingStates())

	for _, s := range RentStates {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, RentState("lost").Valid())
	assert.False(t, RentState("").Valid())
}

func TestParseRentFilter(t *testing.T) {
	f, ok := ParseRentFilter("")
	assert.True(t, ok)
	assert.Equal(t, RentFilterAll, f)
	assert.Nil(t, f.States())

	f, ok = ParseRentFilter("open")
	assert.True(t, ok)
	assert.Equal(t, []RentState{RentRequested, RentApproved}, f.States())

	_, ok = ParseRentFilter("pending")
	assert.False(t, ok)
}
