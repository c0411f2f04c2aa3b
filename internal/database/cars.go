package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"carrental/internal/models"
)

var carColumns = []string{
	"id", "brand", "model", "licence_plate", "day_rate", "odometer", "fuel_type", "licence_class",
	"in_proper_condition", "deleted", "is_rented", "depot_id", "created_at", "updated_at",
}

var carSelect = "SELECT " + strings.Join(carColumns, ", ") + " FROM cars"

func scanCar(row scanner) (*models.Car, error) {
	var (
		c       models.Car
		depotID *int64
	)
	err := row.Scan(
		&c.ID, &c.Brand, &c.Model, &c.LicencePlate, &c.DayRate, &c.Odometer, &c.FuelType, &c.LicenceClass,
		&c.InProperCondition, &c.Deleted, &c.IsRented, &depotID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if depotID != nil {
		c.DepotID = *depotID
	}
	return &c, nil
}

func (db *DB) CreateCar(ctx context.Context, car *models.Car) error {
	query := `INSERT INTO cars (
				brand, model, licence_plate, day_rate, odometer, fuel_type, licence_class,
				in_proper_condition, deleted, is_rented, depot_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`
	now := db.now()
	result, err := db.ExecContext(ctx, query,
		car.Brand,
		car.Model,
		car.LicencePlate,
		car.DayRate,
		car.Odometer,
		car.FuelType,
		car.LicenceClass,
		car.InProperCondition,
		nullInt64(car.DepotID),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create car: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	car.ID = id
	car.CreatedAt = now
	car.UpdatedAt = now
	return nil
}

// UpsertCar inserts a car or refreshes the catalogue fields of the car with the same plate.
// Odometer only moves forward; rental flags are left alone.
func (db *DB) UpsertCar(ctx context.Context, car *models.Car) error {
	query := `INSERT INTO cars (
				brand, model, licence_plate, day_rate, odometer, fuel_type, licence_class,
				in_proper_condition, deleted, is_rented, depot_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
			ON CONFLICT(licence_plate) DO UPDATE SET
				brand = excluded.brand,
				model = excluded.model,
				day_rate = excluded.day_rate,
				odometer = MAX(cars.odometer, excluded.odometer),
				fuel_type = excluded.fuel_type,
				licence_class = excluded.licence_class,
				in_proper_condition = excluded.in_proper_condition,
				depot_id = excluded.depot_id,
				updated_at = excluded.updated_at`
	now := db.now()
	_, err := db.ExecContext(ctx, query,
		car.Brand, car.Model, car.LicencePlate, car.DayRate, car.Odometer, car.FuelType, car.LicenceClass,
		car.InProperCondition, nullInt64(car.DepotID), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert car %s: %w", car.LicencePlate, err)
	}

	stored, err := db.GetCarByPlate(ctx, car.LicencePlate)
	if err != nil {
		return err
	}
	*car = *stored
	return nil
}

func (db *DB) GetCar(ctx context.Context, id int64) (*models.Car, error) {
	return getCar(ctx, db, id)
}

func getCar(ctx context.Context, q querier, id int64) (*models.Car, error) {
	car, err := scanCar(q.QueryRowContext(ctx, carSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "car", id)
	}
	return car, nil
}

func (db *DB) GetCarByPlate(ctx context.Context, plate string) (*models.Car, error) {
	car, err := scanCar(db.QueryRowContext(ctx, carSelect+" WHERE licence_plate = ?", plate))
	if err != nil {
		return nil, fmt.Errorf("failed to get car by plate %s: %w", plate, err)
	}
	return car, nil
}

func (db *DB) ListCars(ctx context.Context, includeDeleted bool) ([]*models.Car, error) {
	query := carSelect
	if !includeDeleted {
		query += " WHERE deleted = 0"
	}
	query += " ORDER BY id ASC"
	return db.queryCars(ctx, query)
}

func (db *DB) UpdateCarCondition(ctx context.Context, id int64, inProperCondition bool) error {
	query := `UPDATE cars SET in_proper_condition = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, inProperCondition, db.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update car condition: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound(sql.ErrNoRows, "car", id)
	}
	return nil
}

func (db *DB) SoftDeleteCar(ctx context.Context, id int64) error {
	query := `UPDATE cars SET deleted = 1, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, db.now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete car: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound(sql.ErrNoRows, "car", id)
	}
	return nil
}

// blockingStateList is the SQL IN list of models.BlockingStates.
var blockingStateList = func() string {
	quoted := make([]string, 0, 2)
	for _, s := range models.BlockingStates() {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}()

var blockingOverlap = `SELECT COUNT(*) FROM rents
	WHERE car_id = ? AND state IN ` + blockingStateList + `
	AND planned_start < ? AND planned_end > ? AND id != ?`

// IsCarAvailable reports whether no approved or issued rent overlaps [start, end).
func (db *DB) IsCarAvailable(ctx context.Context, carID int64, start, end time.Time) (bool, error) {
	overlap, err := hasBlockingOverlap(ctx, db, carID, start, end, 0)
	if err != nil {
		return false, err
	}
	return !overlap, nil
}

func hasBlockingOverlap(ctx context.Context, q querier, carID int64, start, end time.Time, exceptRentID int64) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, blockingOverlap, carID, end.UTC(), start.UTC(), exceptRentID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check availability: %w", err)
	}
	return count > 0, nil
}

// ListAvailableCars returns rentable cars with no blocking rent overlapping [start, end).
func (db *DB) ListAvailableCars(ctx context.Context, start, end time.Time) ([]*models.Car, error) {
	query := carSelect + ` c WHERE c.deleted = 0 AND c.in_proper_condition = 1
		AND NOT EXISTS (
			SELECT 1 FROM rents r
			WHERE r.car_id = c.id AND r.state IN ` + blockingStateList + `
			AND r.planned_start < ? AND r.planned_end > ?
		)
		ORDER BY c.id ASC`
	return db.queryCars(ctx, query, end.UTC(), start.UTC())
}

func (db *DB) queryCars(ctx context.Context, query string, args ...any) ([]*models.Car, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cars: %w", err)
	}
	defer rows.Close()

	var cars []*models.Car
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan car: %w", err)
		}
		cars = append(cars, car)
	}
	return cars, rows.Err()
}
