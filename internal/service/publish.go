package service

import (
	"context"

	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

// publisher wraps the event bus; publish failures are logged, never returned.
type publisher struct {
	bus    domain.EventPublisher
	logger *zerolog.Logger
}

func (p publisher) rent(eventType string, rent *models.Rent, actorID int64, reason string) {
	if p.bus == nil || rent == nil {
		return
	}
	payload := events.RentEventPayload{
		RentID:       rent.ID,
		RenterID:     rent.RenterID,
		CarID:        rent.CarID,
		State:        string(rent.State),
		PlannedStart: rent.PlannedStart,
		PlannedEnd:   rent.PlannedEnd,
		ActorID:      actorID,
		TotalCost:    rent.TotalCost,
		ReceiptID:    rent.ReceiptID,
		Reason:       reason,
	}
	if err := p.bus.PublishJSON(eventType, payload); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Int64("rent_id", rent.ID).Msg("publish event error")
	}
}

func (p publisher) waitlist(eventType string, e *models.WaitingListEntry) {
	if p.bus == nil || e == nil {
		return
	}
	payload := events.WaitlistEventPayload{
		EntryID:  e.ID,
		UserID:   e.UserID,
		CarID:    e.CarID,
		Position: e.Position,
		Status:   string(e.Status),
	}
	if err := p.bus.PublishJSON(eventType, payload); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Int64("entry_id", e.ID).Msg("publish event error")
	}
}

// enqueueNotification hands a message to the outbox. Delivery is fire-and-forget.
func enqueueNotification(ctx context.Context, n domain.NotificationEnqueuer, logger *zerolog.Logger, userID int64, kind, subject, body string) {
	if n == nil {
		return
	}
	if err := n.Enqueue(ctx, userID, kind, subject, body); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Str("kind", kind).Msg("notification enqueue error")
	}
}
