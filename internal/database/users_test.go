package database

import (
	"context"
	"testing"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := &models.User{Email: " Jane@Example.com ", FirstName: "Jane", LastName: "Doe", Phone: "+100"}
	require.NoError(t, db.CreateUser(ctx, user))
	assert.Equal(t, models.RoleCustomer, user.Role)

	got, err := db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, "Jane Doe", got.FullName())

	byEmail, err := db.GetUserByEmail(ctx, "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = db.GetUser(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// users without email do not collide on the unique index
	require.NoError(t, db.CreateUser(ctx, &models.User{FirstName: "A"}))
	require.NoError(t, db.CreateUser(ctx, &models.User{FirstName: "B"}))
}

func TestGetOrCreateGuest(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	info := models.GuestInfo{Email: "guest@example.com", FirstName: "Gus"}
	first, err := db.GetOrCreateGuest(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, models.RoleGuest, first.Role)

	info.Phone = "+200"
	second, err := db.GetOrCreateGuest(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "+200", second.Phone)

	customer := &models.User{Email: "known@example.com", FirstName: "Kim", Phone: "+1"}
	require.NoError(t, db.CreateUser(ctx, customer))
	resolved, err := db.GetOrCreateGuest(ctx, models.GuestInfo{Email: "KNOWN@example.com", FirstName: "K", Phone: "+9"})
	require.NoError(t, err)
	assert.Equal(t, customer.ID, resolved.ID)
	assert.Equal(t, models.RoleCustomer, resolved.Role)
	assert.Equal(t, "+1", resolved.Phone)
}

func TestUpsertUserAndListByRole(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	staff := &models.User{Email: "desk@example.com", FirstName: "Desk", Role: models.RoleStaff}
	require.NoError(t, db.UpsertUser(ctx, staff))
	staff.FirstName = "Front desk"
	require.NoError(t, db.UpsertUser(ctx, staff))

	users, err := db.ListUsersByRole(ctx, models.RoleStaff)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Front desk", users[0].FirstName)
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
