package models

import "time"

type WaitingStatus string

const (
	WaitingActive   WaitingStatus = "active"
	WaitingNotified WaitingStatus = "notified"
	WaitingBooked   WaitingStatus = "booked"
	WaitingCanceled WaitingStatus = "canceled"
)

// Queued reports whether the entry still holds a place in the queue.
func (s WaitingStatus) Queued() bool {
	return s == WaitingActive || s == WaitingNotified
}

type WaitingListEntry struct {
	ID         int64         `json:"id"`
	UserID     int64         `json:"user_id"`
	CarID      int64         `json:"car_id"`
	Position   int64         `json:"position"`
	Status     WaitingStatus `json:"status"`
	QueuedAt   time.Time     `json:"queued_at"`
	NotifiedAt *time.Time    `json:"notified_at,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
