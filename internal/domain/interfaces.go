package domain

import (
	"context"
	"time"

	"carrental/internal/models"
)

// BillFunc builds the receipt for a rent being approved with an invoice request.
// It runs inside the approval transaction.
type BillFunc func(car *models.Car, rent *models.Rent) (*models.Receipt, error)

// ReturnPriceFunc computes the final cost and receipt lines of a rent whose
// odometer readings are already set. It runs inside the return transaction.
type ReturnPriceFunc func(car *models.Car, rent *models.Rent) (total int64, items []models.LineItem)

type ReturnParams struct {
	RentID         int64
	StaffID        int64
	ActualEnd      time.Time
	EndingOdometer int64
	ReturnDepotID  *int64
}

type CarRepository interface {
	GetCar(ctx context.Context, id int64) (*models.Car, error)
	ListCars(ctx context.Context, includeDeleted bool) ([]*models.Car, error)
	IsCarAvailable(ctx context.Context, carID int64, start, end time.Time) (bool, error)
	ListAvailableCars(ctx context.Context, start, end time.Time) ([]*models.Car, error)
}

type RentRepository interface {
	CreateRent(ctx context.Context, rent *models.Rent) error
	GetRent(ctx context.Context, id int64) (*models.Rent, error)
	ListRents(ctx context.Context, q models.RentQuery) ([]*models.Rent, error)
	// ApproveRent reports changed=false when the rent was already past requested.
	ApproveRent(ctx context.Context, rentID, staffID int64, bill BillFunc) (rent *models.Rent, changed bool, err error)
	RejectRent(ctx context.Context, rentID int64) (*models.Rent, error)
	IssueRent(ctx context.Context, rentID, staffID int64, actualStart time.Time) (*models.Rent, error)
	ReturnRent(ctx context.Context, p ReturnParams, price ReturnPriceFunc) (*models.Rent, error)
	GetReceipt(ctx context.Context, id int64) (*models.Receipt, error)
}

type WaitingListRepository interface {
	// JoinWaitingList returns the existing queued entry with created=false when there is one.
	JoinWaitingList(ctx context.Context, carID, userID int64, at time.Time) (entry *models.WaitingListEntry, created bool, err error)
	NotifyNext(ctx context.Context, carID int64, at time.Time) (*models.WaitingListEntry, error)
	GetWaitingEntry(ctx context.Context, id int64) (*models.WaitingListEntry, error)
	ListWaitingList(ctx context.Context, carID int64, statuses ...models.WaitingStatus) ([]*models.WaitingListEntry, error)
	CancelWaitingEntry(ctx context.Context, id int64, at time.Time) (*models.WaitingListEntry, error)
	MarkWaitingBooked(ctx context.Context, carID, userID int64, at time.Time) (*models.WaitingListEntry, error)
	ExpireNotified(ctx context.Context, notifiedBefore, at time.Time) ([]*models.WaitingListEntry, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetOrCreateGuest(ctx context.Context, info models.GuestInfo) (*models.User, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	ClaimNotification(ctx context.Context, id int64) (bool, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status, lastError string, nextRetryAt *time.Time) error
}

type Repository interface {
	CarRepository
	RentRepository
	WaitingListRepository
	UserRepository
}

// AvailabilityCache memoizes ListAvailableCars results and backs request rate limits.
type AvailabilityCache interface {
	GetAvailableCars(ctx context.Context, start, end time.Time) ([]models.CarSummary, bool, error)
	SetAvailableCars(ctx context.Context, start, end time.Time, cars []models.CarSummary, ttl time.Duration) error
	Invalidate(ctx context.Context) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// NotificationEnqueuer hands a message to the delivery pipeline without waiting for delivery.
type NotificationEnqueuer interface {
	Enqueue(ctx context.Context, userID int64, kind, subject, body string) error
}

// Clock is injected so services can be tested against fixed instants.
type Clock func() time.Time
