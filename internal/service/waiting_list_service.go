package service

import (
	"context"
	"fmt"
	"time"

	"carrental/internal/domain"
	"carrental/internal/metrics"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

// WaitingListStore is what the queue manager needs from the store.
type WaitingListStore interface {
	domain.CarRepository
	domain.WaitingListRepository
	domain.UserRepository
}

type WaitingListOptions struct {
	// ProbeWindow is the interval from now checked when deciding whether a car is free.
	ProbeWindow time.Duration
	// HoldWindow is how long a notified user keeps their claim.
	HoldWindow time.Duration
}

// WaitingListService manages the FIFO per-car queue of users waiting for an unavailable car.
type WaitingListService struct {
	repo     WaitingListStore
	notifier domain.NotificationEnqueuer
	pub      publisher
	opts     WaitingListOptions
	clock    domain.Clock
	logger   *zerolog.Logger
}

func NewWaitingListService(repo WaitingListStore, notifier domain.NotificationEnqueuer, bus domain.EventPublisher, opts WaitingListOptions, clock domain.Clock, logger *zerolog.Logger) *WaitingListService {
	if opts.ProbeWindow <= 0 {
		opts.ProbeWindow = models.DefaultProbeWindow
	}
	if opts.HoldWindow <= 0 {
		opts.HoldWindow = models.DefaultHoldWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &WaitingListService{
		repo:     repo,
		notifier: notifier,
		pub:      publisher{bus: bus, logger: logger},
		opts:     opts,
		clock:    clock,
		logger:   logger,
	}
}

func (s *WaitingListService) now() time.Time {
	return s.clock().UTC()
}

// Join queues the user for the car. It returns nil when the car is free right now,
// in which case the caller should book directly.
func (s *WaitingListService) Join(ctx context.Context, carID, userID int64) (*models.WaitingListEntry, error) {
	car, err := s.repo.GetCar(ctx, carID)
	if err != nil {
		return nil, err
	}
	if car.Deleted {
		return nil, domain.NotFoundf("car %d", carID)
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	if car.Rentable() && !car.IsRented {
		free, err := s.repo.IsCarAvailable(ctx, carID, now, now.Add(s.opts.ProbeWindow))
		if err != nil {
			return nil, err
		}
		if free {
			return nil, nil
		}
	}
	return s.enqueue(ctx, carID, userID, now)
}

// enqueue appends without the "free right now" check; used when a requested interval is taken.
func (s *WaitingListService) enqueue(ctx context.Context, carID, userID int64, at time.Time) (*models.WaitingListEntry, error) {
	entry, created, err := s.repo.JoinWaitingList(ctx, carID, userID, at)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.IncWaitlist("joined")
		s.pub.waitlist(models.EventWaitlistJoined, entry)
		s.logger.Info().
			Int64("car_id", carID).
			Int64("user_id", userID).
			Int64("position", entry.Position).
			Msg("User joined waiting list")
	}
	return entry, nil
}

// Leave cancels a queued entry. Only the owner or staff may do so.
// Canceling a notified entry releases the hold to the next user.
func (s *WaitingListService) Leave(ctx context.Context, actor models.Actor, entryID int64) (*models.WaitingListEntry, error) {
	entry, err := s.repo.GetWaitingEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != actor.UserID && !actor.IsStaff() {
		return nil, domain.NewTransitionError("leave", "waiting_entry", entryID, string(entry.Status), domain.ErrUnauthorized)
	}

	wasNotified := entry.Status == models.WaitingNotified
	canceled, err := s.repo.CancelWaitingEntry(ctx, entryID, s.now())
	if err != nil {
		return nil, err
	}
	metrics.IncWaitlist("left")
	s.pub.waitlist(models.EventWaitlistLeft, canceled)

	if wasNotified {
		if _, err := s.NotifyNext(ctx, canceled.CarID); err != nil {
			s.logger.Error().Err(err).Int64("car_id", canceled.CarID).Msg("Failed to pass hold to next user")
		}
	}
	return canceled, nil
}

// NotifyNext promotes the head of the car's queue and tells them the car is free.
// It returns nil when nobody is waiting.
func (s *WaitingListService) NotifyNext(ctx context.Context, carID int64) (*models.WaitingListEntry, error) {
	entry, err := s.repo.NotifyNext(ctx, carID, s.now())
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	metrics.IncWaitlist("notified")
	s.pub.waitlist(models.EventWaitlistNotified, entry)

	subject := "A car you are waiting for is available"
	body := fmt.Sprintf("Car #%d is available again. Request a rent within %s to keep your place.",
		carID, s.opts.HoldWindow)
	if car, err := s.repo.GetCar(ctx, carID); err == nil {
		body = fmt.Sprintf("%s %s (%s) is available again. Request a rent within %s to keep your place.",
			car.Brand, car.Model, car.LicencePlate, s.opts.HoldWindow)
	}
	enqueueNotification(ctx, s.notifier, s.logger, entry.UserID, models.EventWaitlistNotified, subject, body)
	return entry, nil
}

// MarkBooked converts the user's notified entry for the car, if they hold one.
func (s *WaitingListService) MarkBooked(ctx context.Context, carID, userID int64) (*models.WaitingListEntry, error) {
	entry, err := s.repo.MarkWaitingBooked(ctx, carID, userID, s.now())
	if err != nil || entry == nil {
		return nil, err
	}
	metrics.IncWaitlist("booked")
	return entry, nil
}

// ExpireHolds cancels notified entries whose hold window has passed and notifies
// the next user in each affected queue. It returns the number of expired entries.
func (s *WaitingListService) ExpireHolds(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.repo.ExpireNotified(ctx, now.Add(-s.opts.HoldWindow), now)
	if err != nil {
		return 0, err
	}

	seen := make(map[int64]bool)
	for _, e := range expired {
		metrics.IncWaitlist("expired")
		s.pub.waitlist(models.EventWaitlistLeft, e)
		enqueueNotification(ctx, s.notifier, s.logger, e.UserID, "waitlist_expired",
			"Your waiting list hold expired",
			fmt.Sprintf("Your hold on car #%d expired and the next user was notified.", e.CarID))
		if seen[e.CarID] {
			continue
		}
		seen[e.CarID] = true
		if _, err := s.NotifyNext(ctx, e.CarID); err != nil {
			s.logger.Error().Err(err).Int64("car_id", e.CarID).Msg("Failed to notify next user after hold expiry")
		}
	}
	if len(expired) > 0 {
		s.logger.Info().Int("expired", len(expired)).Msg("Waiting list holds expired")
	}
	return len(expired), nil
}

// List returns the car's queue to staff. Without statuses only queued entries are returned.
func (s *WaitingListService) List(ctx context.Context, actor models.Actor, carID int64, statuses ...models.WaitingStatus) ([]*models.WaitingListEntry, error) {
	if !actor.IsStaff() || actor.UserID == 0 {
		return nil, domain.NewTransitionError("list", "waiting_list", carID, "", domain.ErrUnauthorized)
	}
	if _, err := s.repo.GetCar(ctx, carID); err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		statuses = []models.WaitingStatus{models.WaitingActive, models.WaitingNotified}
	}
	return s.repo.ListWaitingList(ctx, carID, statuses...)
}
