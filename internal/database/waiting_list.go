package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/doug-martin/goqu/v9"
)

var waitingColumns = []interface{}{
	"id", "user_id", "car_id", "position", "status", "queued_at", "notified_at", "updated_at",
}

const waitingSelect = `SELECT id, user_id, car_id, position, status, queued_at, notified_at, updated_at
              FROM waiting_list`

func scanWaitingEntry(row scanner) (*models.WaitingListEntry, error) {
	var e models.WaitingListEntry
	err := row.Scan(&e.ID, &e.UserID, &e.CarID, &e.Position, &e.Status, &e.QueuedAt, &e.NotifiedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// JoinWaitingList appends the user to the car's queue. Positions come from a per-car
// sequence bumped in the same transaction, so they are unique and never reused.
func (db *DB) JoinWaitingList(ctx context.Context, carID, userID int64, at time.Time) (*models.WaitingListEntry, bool, error) {
	var (
		out     *models.WaitingListEntry
		created bool
	)
	at = at.UTC()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanWaitingEntry(tx.QueryRowContext(ctx,
			waitingSelect+` WHERE car_id = ? AND user_id = ? AND status IN ('active', 'notified')
			ORDER BY position ASC LIMIT 1`, carID, userID))
		switch {
		case err == nil:
			out = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to look up waiting entry: %w", err)
		}

		var position int64
		err = tx.QueryRowContext(ctx, `INSERT INTO waiting_list_seq (car_id, last_position) VALUES (?, 1)
			ON CONFLICT(car_id) DO UPDATE SET last_position = last_position + 1
			RETURNING last_position`, carID).Scan(&position)
		if err != nil {
			return fmt.Errorf("failed to allocate queue position for car %d: %w", carID, err)
		}

		result, err := tx.ExecContext(ctx, `INSERT INTO waiting_list (user_id, car_id, position, status, queued_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`, userID, carID, position, models.WaitingActive, at, at)
		if err != nil {
			return fmt.Errorf("failed to insert waiting entry: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		out = &models.WaitingListEntry{
			ID:        id,
			UserID:    userID,
			CarID:     carID,
			Position:  position,
			Status:    models.WaitingActive,
			QueuedAt:  at,
			UpdatedAt: at,
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// NotifyNext flips the lowest-position active entry of the car to notified.
// It returns nil when nobody is waiting.
func (db *DB) NotifyNext(ctx context.Context, carID int64, at time.Time) (*models.WaitingListEntry, error) {
	var out *models.WaitingListEntry
	at = at.UTC()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := scanWaitingEntry(tx.QueryRowContext(ctx,
			waitingSelect+` WHERE car_id = ? AND status = 'active' ORDER BY position ASC LIMIT 1`, carID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find next waiting entry: %w", err)
		}

		if err := setWaitingStatus(ctx, tx, entry, models.WaitingNotified, at); err != nil {
			return err
		}
		entry.NotifiedAt = &at
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func setWaitingStatus(ctx context.Context, q querier, e *models.WaitingListEntry, status models.WaitingStatus, at time.Time) error {
	query := `UPDATE waiting_list SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	args := []any{status, at, e.ID, e.Status}
	if status == models.WaitingNotified {
		query = `UPDATE waiting_list SET status = ?, notified_at = ?, updated_at = ? WHERE id = ? AND status = ?`
		args = []any{status, at, at, e.ID, e.Status}
	}
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update waiting entry %d: %w", e.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	e.Status = status
	e.UpdatedAt = at
	return nil
}

func (db *DB) GetWaitingEntry(ctx context.Context, id int64) (*models.WaitingListEntry, error) {
	e, err := scanWaitingEntry(db.QueryRowContext(ctx, waitingSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "waiting list entry", id)
	}
	return e, nil
}

// ListWaitingList returns the car's entries in queue order; no statuses means all of them.
func (db *DB) ListWaitingList(ctx context.Context, carID int64, statuses ...models.WaitingStatus) ([]*models.WaitingListEntry, error) {
	ds := dialect.From("waiting_list").Select(waitingColumns...).Where(goqu.C("car_id").Eq(carID))
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, s := range statuses {
			vals[i] = string(s)
		}
		ds = ds.Where(goqu.C("status").In(vals))
	}
	query, args, err := ds.Order(goqu.C("position").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build waiting list query: %w", err)
	}
	return db.queryWaiting(ctx, db, query, args...)
}

func (db *DB) queryWaiting(ctx context.Context, q querier, query string, args ...any) ([]*models.WaitingListEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting list: %w", err)
	}
	defer rows.Close()

	var entries []*models.WaitingListEntry
	for rows.Next() {
		e, err := scanWaitingEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waiting entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CancelWaitingEntry takes a queued entry out of the queue. Its position is not reused.
func (db *DB) CancelWaitingEntry(ctx context.Context, id int64, at time.Time) (*models.WaitingListEntry, error) {
	var out *models.WaitingListEntry
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		e, err := scanWaitingEntry(tx.QueryRowContext(ctx, waitingSelect+" WHERE id = ?", id))
		if err != nil {
			return notFound(err, "waiting list entry", id)
		}
		if !e.Status.Queued() {
			return domain.NewTransitionError("leave", "waiting list entry", e.ID, string(e.Status), domain.ErrInvalidState)
		}
		if err := setWaitingStatus(ctx, tx, e, models.WaitingCanceled, at.UTC()); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkWaitingBooked converts the user's notified entry for the car, if any, to booked.
func (db *DB) MarkWaitingBooked(ctx context.Context, carID, userID int64, at time.Time) (*models.WaitingListEntry, error) {
	var out *models.WaitingListEntry
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		e, err := scanWaitingEntry(tx.QueryRowContext(ctx,
			waitingSelect+` WHERE car_id = ? AND user_id = ? AND status = 'notified' ORDER BY position ASC LIMIT 1`,
			carID, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up notified entry: %w", err)
		}
		if err := setWaitingStatus(ctx, tx, e, models.WaitingBooked, at.UTC()); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireNotified cancels notified entries whose hold started before notifiedBefore.
func (db *DB) ExpireNotified(ctx context.Context, notifiedBefore, at time.Time) ([]*models.WaitingListEntry, error) {
	var expired []*models.WaitingListEntry
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		stale, err := db.queryWaiting(ctx, tx,
			waitingSelect+` WHERE status = 'notified' AND notified_at < ? ORDER BY car_id, position`,
			notifiedBefore.UTC())
		if err != nil {
			return err
		}
		for _, e := range stale {
			if err := setWaitingStatus(ctx, tx, e, models.WaitingCanceled, at.UTC()); err != nil {
				return err
			}
		}
		expired = stale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
