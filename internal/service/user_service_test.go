package service

import (
	"context"
	"testing"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_Register(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, err := h.users.Register(ctx, RegisterUserRequest{Email: "New@Example.com", FirstName: "Nia", TelegramID: 77})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, user.Role)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, int64(77), user.TelegramID)

	_, err = h.users.Register(ctx, RegisterUserRequest{Email: "new@example.com", FirstName: "Nia"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = h.users.Register(ctx, RegisterUserRequest{Email: "broken", FirstName: "Nia"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUserService_RegisterPromotesGuest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.rental.CreateGuestRent(ctx, models.GuestInfo{Email: "gus@example.com", FirstName: "Gus"},
		RentRequest{CarID: h.car.ID, PlannedStart: day0, PlannedEnd: day0.Add(time.Hour)})
	require.NoError(t, err)

	user, err := h.users.Register(ctx, RegisterUserRequest{Email: "gus@example.com", FirstName: "Gus", LastName: "Grey"})
	require.NoError(t, err)
	assert.Equal(t, res.Rent.RenterID, user.ID)
	assert.Equal(t, models.RoleCustomer, user.Role)

	rents, err := h.rental.ListRents(ctx, models.Actor{UserID: user.ID, Role: user.Role}, "", nil)
	require.NoError(t, err)
	assert.Len(t, rents, 1)
}

func TestUserService_Staff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.users.SaveStaff(ctx, &models.User{Email: "x@example.com", Role: models.RoleCustomer})
	assert.ErrorIs(t, err, domain.ErrValidation)
	err = h.users.SaveStaff(ctx, &models.User{Role: models.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrValidation)

	admin := &models.User{Email: "boss@example.com", FirstName: "Bo", Role: models.RoleAdmin}
	require.NoError(t, h.users.SaveStaff(ctx, admin))
	assert.NotZero(t, admin.ID)

	staff, err := h.users.GetStaff(ctx)
	require.NoError(t, err)
	assert.Len(t, staff, 2)

	got, err := h.users.GetUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bo", got.FirstName)
}
