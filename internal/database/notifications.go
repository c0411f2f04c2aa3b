package database

import (
	"context"
	"fmt"
	"time"

	"carrental/internal/models"
)

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (user_id, kind, subject, body, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	now := db.now()
	result, err := db.ExecContext(ctx, query,
		n.UserID,
		n.Kind,
		n.Subject,
		n.Body,
		n.Status,
		n.RetryCount,
		n.LastError,
		now,
		utcPtr(n.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

// GetPendingNotifications returns due pending or retry rows, oldest first.
func (db *DB) GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	query := `SELECT id, user_id, kind, subject, body, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM notifications
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, db.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(
			&n.ID, &n.UserID, &n.Kind, &n.Subject, &n.Body, &n.Status, &n.RetryCount, &n.LastError,
			&n.CreatedAt, &n.ProcessedAt, &n.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ClaimNotification moves a due row to processing; false means another consumer got it first.
func (db *DB) ClaimNotification(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE notifications SET status = 'processing' WHERE id = ? AND status IN ('pending', 'retry')`
	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification %d: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status, lastError string, nextRetryAt *time.Time) error {
	query := `UPDATE notifications SET
                status = ?,
                last_error = NULLIF(?, ''),
                retry_count = retry_count + CASE WHEN ? = 'retry' THEN 1 ELSE 0 END,
                processed_at = CASE WHEN ? IN ('completed', 'failed') THEN ? ELSE processed_at END,
                next_retry_at = ?
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query, status, lastError, status, status, db.now(), utcPtr(nextRetryAt), id)
	if err != nil {
		return fmt.Errorf("failed to update notification %d: %w", id, err)
	}
	return nil
}
