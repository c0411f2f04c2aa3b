package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carrental/internal/models"
)

const receiptSelect = `SELECT id, rent_id, number, issuer_id, total_cost, issue_date, seller, buyer, items, updated_at
              FROM receipts`

func insertReceipt(ctx context.Context, q querier, r *models.Receipt) error {
	seller, err := json.Marshal(r.Seller)
	if err != nil {
		return fmt.Errorf("encode seller: %w", err)
	}
	buyer, err := json.Marshal(r.Buyer)
	if err != nil {
		return fmt.Errorf("encode buyer: %w", err)
	}
	items, err := json.Marshal(r.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	query := `INSERT INTO receipts (rent_id, number, issuer_id, total_cost, issue_date, seller, buyer, items, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := q.ExecContext(ctx, query,
		r.RentID,
		r.Number,
		r.IssuerID,
		r.TotalCost,
		r.IssueDate.UTC(),
		string(seller),
		string(buyer),
		string(items),
		r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create receipt for rent %d: %w", r.RentID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// updateReceiptTotal replaces the total and, when given, the line items of a receipt.
func updateReceiptTotal(ctx context.Context, q querier, id, total int64, items []models.LineItem, at time.Time) error {
	if items == nil {
		_, err := q.ExecContext(ctx, `UPDATE receipts SET total_cost = ?, updated_at = ? WHERE id = ?`, total, at, id)
		if err != nil {
			return fmt.Errorf("failed to update receipt %d: %w", id, err)
		}
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	_, err = q.ExecContext(ctx, `UPDATE receipts SET total_cost = ?, items = ?, updated_at = ? WHERE id = ?`,
		total, string(data), at, id)
	if err != nil {
		return fmt.Errorf("failed to update receipt %d: %w", id, err)
	}
	return nil
}

func scanReceipt(row scanner) (*models.Receipt, error) {
	var (
		r                    models.Receipt
		seller, buyer, items string
	)
	err := row.Scan(&r.ID, &r.RentID, &r.Number, &r.IssuerID, &r.TotalCost, &r.IssueDate,
		&seller, &buyer, &items, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(seller), &r.Seller); err != nil {
		return nil, fmt.Errorf("decode seller: %w", err)
	}
	if err := json.Unmarshal([]byte(buyer), &r.Buyer); err != nil {
		return nil, fmt.Errorf("decode buyer: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &r.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return &r, nil
}

func (db *DB) GetReceipt(ctx context.Context, id int64) (*models.Receipt, error) {
	r, err := scanReceipt(db.QueryRowContext(ctx, receiptSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "receipt", id)
	}
	return r, nil
}

func (db *DB) GetReceiptByRent(ctx context.Context, rentID int64) (*models.Receipt, error) {
	r, err := scanReceipt(db.QueryRowContext(ctx, receiptSelect+" WHERE rent_id = ?", rentID))
	if err != nil {
		return nil, notFound(err, "receipt for rent", rentID)
	}
	return r, nil
}
