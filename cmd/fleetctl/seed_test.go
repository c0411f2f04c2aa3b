package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"carrental/internal/database"
	"carrental/internal/models"
	"carrental/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fleetYAML = `
depots:
  - name: Central
    address: 1 Main St
  - name: Airport
    address: Terminal 2
cars:
  - brand: Skoda
    model: Octavia
    licence_plate: AB-100
    day_rate: 10000
    odometer: 1200
    fuel_type: petrol
    licence_class: B
    in_proper_condition: true
    depot: Airport
staff:
  - email: desk@example.com
    first_name: Sam
customers:
  - email: rita@example.com
    first_name: Rita
`

func writeFleet(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newSeedDB(t *testing.T) (*database.DB, *service.UserService) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, service.NewUserService(db, &logger)
}

func TestSeedFleet(t *testing.T) {
	ctx := context.Background()
	db, users := newSeedDB(t)

	f, err := loadFleetFile(writeFleet(t, fleetYAML))
	require.NoError(t, err)

	rep, err := seedFleet(ctx, db, users, f)
	require.NoError(t, err)
	assert.Equal(t, seedReport{Depots: 2, Cars: 1, Staff: 1, Customers: 1}, rep)

	car, err := db.GetCarByPlate(ctx, "AB-100")
	require.NoError(t, err)
	depot, err := db.GetDepot(ctx, car.DepotID)
	require.NoError(t, err)
	assert.Equal(t, "Airport", depot.Name)
	assert.True(t, car.InProperCondition)

	staff, err := users.GetStaff(ctx)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, models.RoleStaff, staff[0].Role)

	// a second run converges instead of duplicating
	rep, err = seedFleet(ctx, db, users, f)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Customers)
	depots, err := db.ListDepots(ctx)
	require.NoError(t, err)
	assert.Len(t, depots, 2)
}

func TestSeedFleetUnknownDepot(t *testing.T) {
	db, users := newSeedDB(t)
	f, err := loadFleetFile(writeFleet(t, `
cars:
  - licence_plate: ZZ-1
    depot: Nowhere
`))
	require.NoError(t, err)

	_, err = seedFleet(context.Background(), db, users, f)
	assert.ErrorContains(t, err, "unknown depot")
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"seed"}, {"export", "rents"}, {"export", "receipt"}, {"backup"}, {"expire-holds"}, {"staff"},
		{"car", "list"}, {"car", "condition"}, {"car", "retire"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
