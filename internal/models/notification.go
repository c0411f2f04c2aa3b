package models

import "time"

const (
	NotificationPending   = "pending"
	NotificationRetry     = "retry"
	NotificationCompleted = "completed"
	NotificationFailed    = "failed"
)

// Notification is an outbox row awaiting delivery.
type Notification struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Kind        string     `json:"kind"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
