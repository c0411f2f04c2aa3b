package service

import (
	"context"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

// FleetStore is the car maintenance side of the store.
type FleetStore interface {
	GetCar(ctx context.Context, id int64) (*models.Car, error)
	ListCars(ctx context.Context, includeDeleted bool) ([]*models.Car, error)
	UpdateCarCondition(ctx context.Context, id int64, inProperCondition bool) error
	SoftDeleteCar(ctx context.Context, id int64) error
}

// FleetService takes cars in and out of service. Every change drops cached availability listings.
type FleetService struct {
	store  FleetStore
	avail  *AvailabilityService
	logger *zerolog.Logger
}

func NewFleetService(store FleetStore, avail *AvailabilityService, logger *zerolog.Logger) *FleetService {
	return &FleetService{store: store, avail: avail, logger: logger}
}

func requireFleetStaff(actor models.Actor, op string, carID int64) error {
	if actor.IsStaff() {
		return nil
	}
	return domain.NewTransitionError(op, "car", carID, "", domain.ErrUnauthorized)
}

func (s *FleetService) ListCars(ctx context.Context, includeDeleted bool) ([]*models.Car, error) {
	return s.store.ListCars(ctx, includeDeleted)
}

// SetCondition marks a car fit or unfit for rent. Unfit cars drop out of availability
// but keep their existing rents.
func (s *FleetService) SetCondition(ctx context.Context, actor models.Actor, carID int64, inProperCondition bool) error {
	if err := requireFleetStaff(actor, "condition", carID); err != nil {
		return err
	}
	if err := s.store.UpdateCarCondition(ctx, carID, inProperCondition); err != nil {
		return err
	}
	s.invalidate(ctx, carID)
	s.logger.Info().Int64("car_id", carID).Bool("in_proper_condition", inProperCondition).Msg("Car condition updated")
	return nil
}

// Retire soft-deletes a car. A car currently out on rent cannot be retired.
func (s *FleetService) Retire(ctx context.Context, actor models.Actor, carID int64) error {
	if err := requireFleetStaff(actor, "retire", carID); err != nil {
		return err
	}
	car, err := s.store.GetCar(ctx, carID)
	if err != nil {
		return err
	}
	if car.IsRented {
		return domain.NewTransitionError("retire", "car", carID, "rented", domain.ErrInvalidState)
	}
	if err := s.store.SoftDeleteCar(ctx, carID); err != nil {
		return err
	}
	s.invalidate(ctx, carID)
	s.logger.Info().Int64("car_id", carID).Msg("Car retired")
	return nil
}

func (s *FleetService) invalidate(ctx context.Context, carID int64) {
	if s.avail == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.avail.Invalidate(ctx); err != nil {
		s.logger.Error().Err(err).Int64("car_id", carID).Msg("Failed to invalidate availability cache")
	}
}
