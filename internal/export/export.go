// Package export renders receipts and rent lists as Excel workbooks.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"carrental/internal/events"
	"carrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

type Store interface {
	GetReceipt(ctx context.Context, id int64) (*models.Receipt, error)
	GetRent(ctx context.Context, id int64) (*models.Rent, error)
	GetCar(ctx context.Context, id int64) (*models.Car, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListRents(ctx context.Context, q models.RentQuery) ([]*models.Rent, error)
}

type Exporter struct {
	store      Store
	receiptDir string
	exportDir  string
	logger     *zerolog.Logger
}

func New(store Store, receiptDir, exportDir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, receiptDir: receiptDir, exportDir: exportDir, logger: logger}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// RenderReceipt writes the receipt as an invoice workbook and returns its path.
// Rendering again overwrites the file, so the latest total always wins.
func (e *Exporter) RenderReceipt(ctx context.Context, receiptID int64) (string, error) {
	receipt, err := e.store.GetReceipt(ctx, receiptID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.receiptDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating receipt directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Receipt"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	title, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})

	_ = f.SetCellValue(sheet, "A1", "Receipt "+receipt.Number)
	_ = f.SetCellStyle(sheet, "A1", "A1", title)
	_ = f.MergeCell(sheet, "A1", "D1")
	_ = f.SetCellValue(sheet, "A2", "Issue date")
	_ = f.SetCellValue(sheet, "B2", receipt.IssueDate.Format("2006-01-02"))
	_ = f.SetCellValue(sheet, "A3", "Rent")
	_ = f.SetCellValue(sheet, "B3", receipt.RentID)

	_ = f.SetCellValue(sheet, "A5", "Seller")
	_ = f.SetCellValue(sheet, "C5", "Buyer")
	_ = f.SetCellStyle(sheet, "A5", "C5", bold)
	writeParty(f, sheet, "A", 6, receipt.Seller)
	writeParty(f, sheet, "C", 6, receipt.Buyer)

	header := []string{"Description", "Quantity", "Unit price", "Total"}
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 11)
		_ = f.SetCellValue(sheet, cell, h)
	}
	_ = f.SetCellStyle(sheet, "A11", "D11", bold)

	row := 12
	for _, item := range receipt.Items {
		_ = f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &[]interface{}{
			item.Description, item.Quantity, amount(item.UnitPrice), amount(item.Total),
		})
		row++
	}
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row+1), "Total")
	_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row+1), amount(receipt.TotalCost))
	_ = f.SetCellStyle(sheet, fmt.Sprintf("C%d", row+1), fmt.Sprintf("D%d", row+1), bold)

	_ = f.SetColWidth(sheet, "A", "A", 45)
	_ = f.SetColWidth(sheet, "B", "D", 18)

	path := filepath.Join(e.receiptDir, fmt.Sprintf("receipt_%s.xlsx", unsafeName.ReplaceAllString(receipt.Number, "_")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving receipt: %w", err)
	}
	e.logger.Info().Str("file_path", path).Int64("receipt_id", receipt.ID).Msg("Receipt rendered")
	return path, nil
}

func writeParty(f *excelize.File, sheet, col string, row int, p models.Party) {
	for i, v := range []string{p.Name, p.Address, p.TaxID, p.Email} {
		if v == "" {
			continue
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row+i), v)
	}
}

// amount converts minor units for display in the sheet.
func amount(minor int64) float64 {
	return float64(minor) / 100
}

// HandleReceiptEvent renders the receipt referenced by a rent event, if any.
func (e *Exporter) HandleReceiptEvent(event *events.Event) error {
	var payload events.RentEventPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	if payload.ReceiptID == nil {
		return nil
	}
	_, err := e.RenderReceipt(context.Background(), *payload.ReceiptID)
	return err
}

var rentHeader = []interface{}{
	"Rent", "State", "Car", "Plate", "Renter", "Email",
	"Planned start", "Planned end", "Actual start", "Actual end",
	"Start km", "End km", "Total",
}

// ExportRents writes the rents matched by q to a workbook and returns its path.
func (e *Exporter) ExportRents(ctx context.Context, q models.RentQuery) (string, error) {
	rents, err := e.store.ListRents(ctx, q)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.exportDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Rents"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetSheetRow(sheet, "A1", &rentHeader)
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastCol, _ := excelize.ColumnNumberToName(len(rentHeader))
	_ = f.SetCellStyle(sheet, "A1", lastCol+"1", style)

	cars := make(map[int64]*models.Car)
	users := make(map[int64]*models.User)
	for i, r := range rents {
		car, ok := cars[r.CarID]
		if !ok {
			if car, err = e.store.GetCar(ctx, r.CarID); err != nil {
				return "", err
			}
			cars[r.CarID] = car
		}
		user, ok := users[r.RenterID]
		if !ok {
			if user, err = e.store.GetUser(ctx, r.RenterID); err != nil {
				return "", err
			}
			users[r.RenterID] = user
		}

		row := []interface{}{
			r.ID, string(r.State), car.Brand + " " + car.Model, car.LicencePlate, user.FullName(), user.Email,
			stamp(&r.PlannedStart), stamp(&r.PlannedEnd), stamp(r.ActualStart), stamp(r.ActualEnd),
			optional(r.StartingOdometer), optional(r.EndingOdometer), optionalAmount(r.TotalCost),
		}
		_ = f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row)
	}
	_ = f.SetColWidth(sheet, "A", lastCol, 18)

	name := fmt.Sprintf("rents_%s_%s.xlsx", filterName(q.Filter), time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(e.exportDir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	e.logger.Info().Str("file_path", path).Int("rents", len(rents)).Msg("Rent export created")
	return path, nil
}

func filterName(f models.RentFilter) string {
	if f == "" {
		return string(models.RentFilterAll)
	}
	return string(f)
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func optional(v *int64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func optionalAmount(v *int64) interface{} {
	if v == nil {
		return ""
	}
	return amount(*v)
}
