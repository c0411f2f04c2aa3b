package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // goqu sqlite3 dialect
)

var rentColumns = []string{
	"id", "renter_id", "car_id", "state", "planned_start", "planned_end", "actual_start", "actual_end",
	"approved_by", "issued_by", "taken_back_by", "starting_odometer", "ending_odometer", "invoice_request",
	"receipt_id", "issued_at", "total_cost", "pickup_depot_id", "return_depot_id",
	"created_at", "updated_at", "version",
}

var rentSelect = "SELECT " + strings.Join(rentColumns, ", ") + " FROM rents"

var dialect = goqu.Dialect("sqlite3")

func scanRent(row scanner) (*models.Rent, error) {
	var (
		r      models.Rent
		pickup *int64
	)
	err := row.Scan(
		&r.ID, &r.RenterID, &r.CarID, &r.State, &r.PlannedStart, &r.PlannedEnd, &r.ActualStart, &r.ActualEnd,
		&r.ApprovedBy, &r.IssuedBy, &r.TakenBackBy, &r.StartingOdometer, &r.EndingOdometer, &r.InvoiceRequest,
		&r.ReceiptID, &r.IssuedAt, &r.TotalCost, &pickup, &r.ReturnDepotID,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if !r.State.Valid() {
		return nil, fmt.Errorf("rent %d has unknown state %q", r.ID, r.State)
	}
	if pickup != nil {
		r.PickupDepotID = *pickup
	}
	return &r, nil
}

// CreateRent stores a new rent in the requested state.
func (db *DB) CreateRent(ctx context.Context, rent *models.Rent) error {
	query := `INSERT INTO rents (
				renter_id, car_id, state, planned_start, planned_end, invoice_request,
				pickup_depot_id, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	now := db.now()
	result, err := db.ExecContext(ctx, query,
		rent.RenterID,
		rent.CarID,
		models.RentRequested,
		rent.PlannedStart.UTC(),
		rent.PlannedEnd.UTC(),
		rent.InvoiceRequest,
		nullInt64(rent.PickupDepotID),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create rent: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rent.ID = id
	rent.State = models.RentRequested
	rent.CreatedAt = now
	rent.UpdatedAt = now
	rent.Version = 1
	return nil
}

func (db *DB) GetRent(ctx context.Context, id int64) (*models.Rent, error) {
	return getRent(ctx, db, id)
}

func getRent(ctx context.Context, q querier, id int64) (*models.Rent, error) {
	rent, err := scanRent(q.QueryRowContext(ctx, rentSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "rent", id)
	}
	return rent, nil
}

// ListRents returns rents matching the filter, oldest planned start first.
func (db *DB) ListRents(ctx context.Context, q models.RentQuery) ([]*models.Rent, error) {
	cols := make([]interface{}, len(rentColumns))
	for i, c := range rentColumns {
		cols[i] = c
	}
	ds := dialect.From("rents").Select(cols...)

	if states := q.Filter.States(); len(states) > 0 {
		vals := make([]string, len(states))
		for i, s := range states {
			vals[i] = string(s)
		}
		ds = ds.Where(goqu.C("state").In(vals))
	}
	if q.UserID != nil {
		ds = ds.Where(goqu.C("renter_id").Eq(*q.UserID))
	}
	if q.CarID != nil {
		ds = ds.Where(goqu.C("car_id").Eq(*q.CarID))
	}
	ds = ds.Order(goqu.C("planned_start").Asc(), goqu.C("id").Asc())

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build rents query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rents: %w", err)
	}
	defer rows.Close()

	var rents []*models.Rent
	for rows.Next() {
		r, err := scanRent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rent: %w", err)
		}
		rents = append(rents, r)
	}
	return rents, rows.Err()
}

// updateRent writes every mutable column guarded by the version the rent was read at.
func updateRent(ctx context.Context, q querier, rent *models.Rent) error {
	query := `UPDATE rents SET
				state = ?, actual_start = ?, actual_end = ?, approved_by = ?, issued_by = ?, taken_back_by = ?,
				starting_odometer = ?, ending_odometer = ?, receipt_id = ?, issued_at = ?, total_cost = ?,
				return_depot_id = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`
	result, err := q.ExecContext(ctx, query,
		rent.State,
		utcPtr(rent.ActualStart),
		utcPtr(rent.ActualEnd),
		rent.ApprovedBy,
		rent.IssuedBy,
		rent.TakenBackBy,
		rent.StartingOdometer,
		rent.EndingOdometer,
		rent.ReceiptID,
		utcPtr(rent.IssuedAt),
		rent.TotalCost,
		rent.ReturnDepotID,
		rent.UpdatedAt,
		rent.ID,
		rent.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update rent %d: %w", rent.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	rent.Version++
	return nil
}

// ApproveRent re-checks the car's calendar and records the approver in one transaction.
// A rent already past requested is returned as stored with changed=false.
func (db *DB) ApproveRent(ctx context.Context, rentID, staffID int64, bill domain.BillFunc) (*models.Rent, bool, error) {
	var (
		out     *models.Rent
		changed bool
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rent, err := getRent(ctx, tx, rentID)
		if err != nil {
			return err
		}
		if rent.State != models.RentRequested {
			out = rent
			return nil
		}

		car, err := getCar(ctx, tx, rent.CarID)
		if err != nil {
			return err
		}
		if !car.Rentable() {
			return domain.NewTransitionError("approve", "rent", rent.ID, string(rent.State),
				fmt.Errorf("%w: car %d is not rentable", domain.ErrConflict, car.ID))
		}

		overlap, err := hasBlockingOverlap(ctx, tx, rent.CarID, rent.PlannedStart, rent.PlannedEnd, rent.ID)
		if err != nil {
			return err
		}
		if overlap {
			return domain.NewTransitionError("approve", "rent", rent.ID, string(rent.State),
				fmt.Errorf("%w: car %d is already booked for the interval", domain.ErrConflict, car.ID))
		}

		now := db.now()
		rent.State = models.RentApproved
		rent.ApprovedBy = &staffID
		rent.UpdatedAt = now

		if rent.InvoiceRequest && bill != nil {
			receipt, err := bill(car, rent)
			if err != nil {
				return fmt.Errorf("failed to bill rent %d: %w", rent.ID, err)
			}
			receipt.RentID = rent.ID
			receipt.IssuerID = staffID
			if receipt.IssueDate.IsZero() {
				receipt.IssueDate = now
			}
			receipt.UpdatedAt = now
			if err := insertReceipt(ctx, tx, receipt); err != nil {
				return err
			}
			issued := receipt.IssueDate.UTC()
			total := receipt.TotalCost
			rent.ReceiptID = &receipt.ID
			rent.IssuedAt = &issued
			rent.TotalCost = &total
		}

		if err := updateRent(ctx, tx, rent); err != nil {
			return err
		}
		out = rent
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// RejectRent deletes a requested rent and returns it as it was.
func (db *DB) RejectRent(ctx context.Context, rentID int64) (*models.Rent, error) {
	var out *models.Rent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rent, err := getRent(ctx, tx, rentID)
		if err != nil {
			return err
		}
		if rent.State != models.RentRequested {
			return domain.NewTransitionError("reject", "rent", rent.ID, string(rent.State), domain.ErrInvalidState)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM rents WHERE id = ? AND version = ?`, rent.ID, rent.Version)
		if err != nil {
			return fmt.Errorf("failed to delete rent %d: %w", rent.ID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrConcurrentModification
		}
		out = rent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IssueRent hands the car over: the starting odometer is the car's current reading.
func (db *DB) IssueRent(ctx context.Context, rentID, staffID int64, actualStart time.Time) (*models.Rent, error) {
	var out *models.Rent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rent, err := getRent(ctx, tx, rentID)
		if err != nil {
			return err
		}
		if rent.State != models.RentApproved {
			return domain.NewTransitionError("issue", "rent", rent.ID, string(rent.State), domain.ErrInvalidState)
		}

		car, err := getCar(ctx, tx, rent.CarID)
		if err != nil {
			return err
		}
		if car.IsRented {
			return domain.NewTransitionError("issue", "rent", rent.ID, string(rent.State),
				fmt.Errorf("%w: car %d is still out on another rent", domain.ErrConflict, car.ID))
		}

		now := db.now()
		if actualStart.IsZero() {
			actualStart = now
		}
		start := actualStart.UTC()
		odometer := car.Odometer
		rent.State = models.RentIssued
		rent.IssuedBy = &staffID
		rent.ActualStart = &start
		rent.StartingOdometer = &odometer
		rent.UpdatedAt = now

		if err := updateRent(ctx, tx, rent); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE cars SET is_rented = 1, updated_at = ? WHERE id = ? AND is_rented = 0`, now, car.ID)
		if err != nil {
			return fmt.Errorf("failed to mark car %d rented: %w", car.ID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrConcurrentModification
		}
		out = rent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReturnRent closes an issued rent, moves the car odometer forward and frees the car.
// The receipt total follows the final price when the rent has one.
func (db *DB) ReturnRent(ctx context.Context, p domain.ReturnParams, price domain.ReturnPriceFunc) (*models.Rent, error) {
	var out *models.Rent
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rent, err := getRent(ctx, tx, p.RentID)
		if err != nil {
			return err
		}
		if rent.State != models.RentIssued {
			return domain.NewTransitionError("return", "rent", rent.ID, string(rent.State), domain.ErrInvalidState)
		}

		var startOdometer int64
		if rent.StartingOdometer != nil {
			startOdometer = *rent.StartingOdometer
		}
		if p.EndingOdometer < startOdometer {
			return domain.NewTransitionError("return", "rent", rent.ID, string(rent.State),
				fmt.Errorf("%w: ending odometer %d is below starting odometer %d",
					domain.ErrValidation, p.EndingOdometer, startOdometer))
		}

		now := db.now()
		actualEnd := p.ActualEnd
		if actualEnd.IsZero() {
			actualEnd = now
		}
		actualEnd = actualEnd.UTC()
		if rent.ActualStart != nil && actualEnd.Before(*rent.ActualStart) {
			return domain.NewTransitionError("return", "rent", rent.ID, string(rent.State),
				fmt.Errorf("%w: return time is before hand-over", domain.ErrValidation))
		}

		car, err := getCar(ctx, tx, rent.CarID)
		if err != nil {
			return err
		}

		ending := p.EndingOdometer
		staffID := p.StaffID
		rent.State = models.RentReturned
		rent.TakenBackBy = &staffID
		rent.ActualEnd = &actualEnd
		rent.EndingOdometer = &ending
		rent.UpdatedAt = now
		switch {
		case p.ReturnDepotID != nil:
			rent.ReturnDepotID = p.ReturnDepotID
		case rent.PickupDepotID != 0:
			pickup := rent.PickupDepotID
			rent.ReturnDepotID = &pickup
		}

		var items []models.LineItem
		if price != nil {
			total, lines := price(car, rent)
			rent.TotalCost = &total
			items = lines
		}

		if err := updateRent(ctx, tx, rent); err != nil {
			return err
		}

		var depot sql.NullInt64
		if rent.ReturnDepotID != nil {
			depot = nullInt64(*rent.ReturnDepotID)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE cars SET odometer = MAX(odometer, ?), is_rented = 0, depot_id = COALESCE(?, depot_id), updated_at = ?
			 WHERE id = ?`, ending, depot, now, car.ID)
		if err != nil {
			return fmt.Errorf("failed to release car %d: %w", car.ID, err)
		}

		if rent.ReceiptID != nil && rent.TotalCost != nil {
			if err := updateReceiptTotal(ctx, tx, *rent.ReceiptID, *rent.TotalCost, items, now); err != nil {
				return err
			}
		}
		out = rent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
