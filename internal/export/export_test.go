package export

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"carrental/internal/database"
	"carrental/internal/events"
	"carrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var day0 = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*database.DB, *models.Rent) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	renter := &models.User{Email: "rita@example.com", FirstName: "Rita", LastName: "Renter"}
	require.NoError(t, db.CreateUser(ctx, renter))
	car := &models.Car{Brand: "Skoda", Model: "Octavia", LicencePlate: "AB-100", DayRate: 10000, Odometer: 1000, InProperCondition: true}
	require.NoError(t, db.CreateCar(ctx, car))
	rent := &models.Rent{RenterID: renter.ID, CarID: car.ID, PlannedStart: day0, PlannedEnd: day0.Add(24 * time.Hour), InvoiceRequest: true}
	require.NoError(t, db.CreateRent(ctx, rent))

	approved, _, err := db.ApproveRent(ctx, rent.ID, renter.ID, func(car *models.Car, rent *models.Rent) (*models.Receipt, error) {
		return &models.Receipt{
			Number:    "FL/2030/001",
			TotalCost: 10050,
			Seller:    models.Party{Name: "Fleet Ltd", Address: "1 Depot Rd"},
			Buyer:     models.Party{Name: "Rita Renter", Email: "rita@example.com"},
			Items:     []models.LineItem{{Description: "Skoda Octavia, 1 day(s)", Quantity: 1, UnitPrice: 10050, Total: 10050}},
		}, nil
	})
	require.NoError(t, err)
	return db, approved
}

func TestRenderReceipt(t *testing.T) {
	db, rent := seed(t)
	logger := zerolog.Nop()
	dir := t.TempDir()
	exp := New(db, filepath.Join(dir, "receipts"), filepath.Join(dir, "exports"), &logger)

	path, err := exp.RenderReceipt(context.Background(), *rent.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, "receipt_FL_2030_001.xlsx", filepath.Base(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Receipt", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Receipt FL/2030/001", title)
	seller, _ := f.GetCellValue("Receipt", "A6")
	assert.Equal(t, "Fleet Ltd", seller)
	buyer, _ := f.GetCellValue("Receipt", "C6")
	assert.Equal(t, "Rita Renter", buyer)
	item, _ := f.GetCellValue("Receipt", "A12")
	assert.Equal(t, "Skoda Octavia, 1 day(s)", item)
	total, _ := f.GetCellValue("Receipt", "D14")
	assert.Equal(t, "100.5", total)

	_, err = exp.RenderReceipt(context.Background(), 9999)
	assert.Error(t, err)
}

func TestHandleReceiptEvent(t *testing.T) {
	db, rent := seed(t)
	logger := zerolog.Nop()
	dir := t.TempDir()
	exp := New(db, dir, dir, &logger)

	payload, err := json.Marshal(events.RentEventPayload{RentID: rent.ID, ReceiptID: rent.ReceiptID})
	require.NoError(t, err)
	require.NoError(t, exp.HandleReceiptEvent(&events.Event{Type: models.EventReceiptUpdated, Payload: payload}))
	assert.FileExists(t, filepath.Join(dir, "receipt_FL_2030_001.xlsx"))

	payload, _ = json.Marshal(events.RentEventPayload{RentID: rent.ID})
	assert.NoError(t, exp.HandleReceiptEvent(&events.Event{Type: models.EventReceiptUpdated, Payload: payload}))

	assert.Error(t, exp.HandleReceiptEvent(&events.Event{Payload: []byte("{")}))
}

func TestExportRents(t *testing.T) {
	db, rent := seed(t)
	logger := zerolog.Nop()
	dir := t.TempDir()
	exp := New(db, dir, dir, &logger)

	path, err := exp.ExportRents(context.Background(), models.RentQuery{Filter: models.RentFilterOpen})
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "rents_open_")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Rents")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Rent", rows[0][0])
	assert.Equal(t, []string{"1", "approved", "Skoda Octavia", "AB-100", "Rita Renter", "rita@example.com",
		"2030-06-01 10:00", "2030-06-02 10:00"}, rows[1][:8])
	assert.Equal(t, "100.5", rows[1][12])
	assert.Equal(t, rent.ID, int64(1))
}
