package database

import (
	"context"
	"fmt"

	"carrental/internal/models"
)

// UpsertDepot inserts a depot or updates the address of the depot with the same name.
func (db *DB) UpsertDepot(ctx context.Context, depot *models.Depot) error {
	query := `INSERT INTO depots (name, address) VALUES (?, ?)
              ON CONFLICT(name) DO UPDATE SET address = excluded.address
              RETURNING id`
	if err := db.QueryRowContext(ctx, query, depot.Name, depot.Address).Scan(&depot.ID); err != nil {
		return fmt.Errorf("failed to upsert depot %s: %w", depot.Name, err)
	}
	return nil
}

func (db *DB) GetDepot(ctx context.Context, id int64) (*models.Depot, error) {
	var d models.Depot
	err := db.QueryRowContext(ctx, `SELECT id, name, address FROM depots WHERE id = ?`, id).Scan(&d.ID, &d.Name, &d.Address)
	if err != nil {
		return nil, notFound(err, "depot", id)
	}
	return &d, nil
}

func (db *DB) ListDepots(ctx context.Context) ([]*models.Depot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, address FROM depots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list depots: %w", err)
	}
	defer rows.Close()

	var depots []*models.Depot
	for rows.Next() {
		var d models.Depot
		if err := rows.Scan(&d.ID, &d.Name, &d.Address); err != nil {
			return nil, fmt.Errorf("failed to scan depot: %w", err)
		}
		depots = append(depots, &d)
	}
	return depots, rows.Err()
}
