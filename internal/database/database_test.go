package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	depot  *models.Depot
	renter *models.User
	staff  *models.User
	car    *models.Car
}

func seedFixture(t *testing.T, db *DB) fixture {
	t.Helper()
	ctx := context.Background()

	depot := &models.Depot{Name: "Central", Address: "1 Main St"}
	require.NoError(t, db.UpsertDepot(ctx, depot))

	renter := &models.User{Email: "renter@example.com", FirstName: "Rita", Role: models.RoleCustomer}
	require.NoError(t, db.CreateUser(ctx, renter))
	staff := &models.User{Email: "desk@example.com", FirstName: "Sam", Role: models.RoleStaff}
	require.NoError(t, db.CreateUser(ctx, staff))

	car := newCar(t, db, "AB-100", depot.ID)
	return fixture{depot: depot, renter: renter, staff: staff, car: car}
}

func newCar(t *testing.T, db *DB, plate string, depotID int64) *models.Car {
	t.Helper()
	car := &models.Car{
		Brand:             "Skoda",
		Model:             "Octavia",
		LicencePlate:      plate,
		DayRate:           10000,
		Odometer:          1000,
		FuelType:          "petrol",
		LicenceClass:      "B",
		InProperCondition: true,
		DepotID:           depotID,
	}
	require.NoError(t, db.CreateCar(context.Background(), car))
	return car
}

func newRent(t *testing.T, db *DB, f fixture, carID int64, start, end time.Time, invoice bool) *models.Rent {
	t.Helper()
	rent := &models.Rent{
		RenterID:       f.renter.ID,
		CarID:          carID,
		PlannedStart:   start,
		PlannedEnd:     end,
		InvoiceRequest: invoice,
		PickupDepotID:  f.depot.ID,
	}
	require.NoError(t, db.CreateRent(context.Background(), rent))
	return rent
}

func flatBill(car *models.Car, rent *models.Rent) (*models.Receipt, error) {
	return &models.Receipt{
		Number:    fmt.Sprintf("R-%d", rent.ID),
		TotalCost: car.DayRate,
		Items:     []models.LineItem{{Description: "rental", Quantity: 1, UnitPrice: car.DayRate, Total: car.DayRate}},
	}, nil
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "fleet.db")

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.Equal(t, dbPath, db.Path())
}

func TestNewDB_Reopen(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "fleet.db")

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	require.NoError(t, db.UpsertDepot(context.Background(), &models.Depot{Name: "North"}))
	require.NoError(t, db.Close())

	db, err = NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	depots, err := db.ListDepots(context.Background())
	require.NoError(t, err)
	assert.Len(t, depots, 1)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	t.Run("IsCarAvailable", func(t *testing.T) {
		_, err := db.IsCarAvailable(ctx, 1, day0, day0.Add(time.Hour))
		assert.Error(t, err)
	})

	t.Run("CreateRent", func(t *testing.T) {
		assert.Error(t, db.CreateRent(ctx, &models.Rent{PlannedStart: day0, PlannedEnd: day0.Add(time.Hour)}))
	})

	t.Run("ListRents", func(t *testing.T) {
		_, err := db.ListRents(ctx, models.RentQuery{Filter: models.RentFilterAll})
		assert.Error(t, err)
	})

	t.Run("ApproveRent", func(t *testing.T) {
		_, _, err := db.ApproveRent(ctx, 1, 1, nil)
		assert.Error(t, err)
	})

	t.Run("JoinWaitingList", func(t *testing.T) {
		_, _, err := db.JoinWaitingList(ctx, 1, 1, day0)
		assert.Error(t, err)
	})
}

func TestNewDB_Error(t *testing.T) {
	logger := zerolog.Nop()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewDB(filepath.Join(blocker, "sub", "fleet.db"), &logger)
	assert.Error(t, err)
}
