package service

import (
	"context"
	"time"

	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService answers calendar questions about the fleet. It never writes rents.
type AvailabilityService struct {
	cars   domain.CarRepository
	cache  domain.AvailabilityCache
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewAvailabilityService(cars domain.CarRepository, cache domain.AvailabilityCache, ttl time.Duration, logger *zerolog.Logger) *AvailabilityService {
	if ttl <= 0 {
		ttl = models.AvailabilityCacheTTL
	}
	return &AvailabilityService{cars: cars, cache: cache, ttl: ttl, logger: logger}
}

// validateInterval normalizes to UTC and rejects empty or inverted intervals.
func validateInterval(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return start, end, domain.Validationf("start and end are required")
	}
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return start, end, domain.Validationf("end %s must be after start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return start, end, nil
}

// CheckAvailability reports whether the car can be booked for [start, end).
// A soft-deleted car is NotFound; a car out of service is never available.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, carID int64, start, end time.Time) (bool, error) {
	start, end, err := validateInterval(start, end)
	if err != nil {
		return false, err
	}
	car, err := s.cars.GetCar(ctx, carID)
	if err != nil {
		return false, err
	}
	if car.Deleted {
		return false, domain.NotFoundf("car %d", carID)
	}
	if !car.InProperCondition {
		return false, nil
	}
	return s.cars.IsCarAvailable(ctx, carID, start, end)
}

func (s *AvailabilityService) ListAvailableCars(ctx context.Context, start, end time.Time) ([]models.CarSummary, error) {
	start, end, err := validateInterval(start, end)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetAvailableCars(ctx, start, end)
		switch {
		case err != nil:
			metrics.IncCache("error")
			s.logger.Warn().Err(err).Msg("Availability cache read failed")
		case ok:
			metrics.IncCache("hit")
			return cached, nil
		default:
			metrics.IncCache("miss")
		}
	}

	cars, err := s.cars.ListAvailableCars(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]models.CarSummary, 0, len(cars))
	for _, c := range cars {
		out = append(out, c.Summary())
	}

	if s.cache != nil {
		if err := s.cache.SetAvailableCars(ctx, start, end, out, s.ttl); err != nil {
			s.logger.Warn().Err(err).Msg("Availability cache write failed")
		}
	}
	return out, nil
}

// Invalidate drops every cached listing.
func (s *AvailabilityService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// HandleCalendarEvent invalidates the cache on any event that changes which rents block a car.
func (s *AvailabilityService) HandleCalendarEvent(_ *events.Event) error {
	return s.Invalidate(context.Background())
}

// CalendarEvents are the event types that change blocking rents or car state.
var CalendarEvents = []string{
	models.EventRentApproved,
	models.EventRentIssued,
	models.EventRentReturned,
	models.EventRentRejected,
}
