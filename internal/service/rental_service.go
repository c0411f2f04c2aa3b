package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain"
	"carrental/internal/metrics"
	"carrental/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// RentRequest is a renter's booking request. Times are normalized to UTC.
type RentRequest struct {
	CarID          int64     `json:"car_id" validate:"required,gt=0"`
	PlannedStart   time.Time `json:"planned_start" validate:"required"`
	PlannedEnd     time.Time `json:"planned_end" validate:"required"`
	InvoiceRequest bool      `json:"invoice_request"`
	PickupDepotID  int64     `json:"pickup_depot_id" validate:"gte=0"`
}

// CreateRentResult carries the created rent and, when the car was taken for the
// interval, the waiting list entry the renter was placed in.
type CreateRentResult struct {
	Rent   *models.Rent             `json:"rent"`
	Queued *models.WaitingListEntry `json:"queued,omitempty"`
}

type RentalOptions struct {
	MaxRentDays int
	GuestLimit  int
	GuestWindow time.Duration
}

// RentalService is the renter-facing entry point: booking requests and rent lookups.
type RentalService struct {
	repo     domain.Repository
	waitlist *WaitingListService
	limiter  domain.AvailabilityCache
	pub      publisher
	validate *validator.Validate
	opts     RentalOptions
	clock    domain.Clock
	logger   *zerolog.Logger
}

func NewRentalService(repo domain.Repository, waitlist *WaitingListService, limiter domain.AvailabilityCache, bus domain.EventPublisher, opts RentalOptions, clock domain.Clock, logger *zerolog.Logger) *RentalService {
	if opts.MaxRentDays <= 0 {
		opts.MaxRentDays = models.DefaultMaxRentDays
	}
	if opts.GuestLimit <= 0 {
		opts.GuestLimit = models.GuestRentLimit
	}
	if opts.GuestWindow <= 0 {
		opts.GuestWindow = models.GuestRentWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &RentalService{
		repo:     repo,
		waitlist: waitlist,
		limiter:  limiter,
		pub:      publisher{bus: bus, logger: logger},
		validate: validator.New(),
		opts:     opts,
		clock:    clock,
		logger:   logger,
	}
}

// validationError flattens validator output into a single ErrValidation.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Validationf("%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return domain.Validationf("invalid fields: %s", strings.Join(fields, ", "))
}

func (s *RentalService) validateRequest(req *RentRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	start, end, err := validateInterval(req.PlannedStart, req.PlannedEnd)
	if err != nil {
		return err
	}

	now := s.clock().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if start.Before(today) {
		return domain.Validationf("planned start %s is in the past", start.Format(time.RFC3339))
	}
	if end.Sub(start) > time.Duration(s.opts.MaxRentDays)*24*time.Hour {
		return domain.Validationf("rent may not exceed %d days", s.opts.MaxRentDays)
	}

	req.PlannedStart, req.PlannedEnd = start, end
	return nil
}

// CreateRent records a booking request for an existing renter. The rent is created
// whether or not the car is free; approval is the gate. If the car is taken for the
// interval the renter is also queued for it.
func (s *RentalService) CreateRent(ctx context.Context, renterID int64, req RentRequest) (*CreateRentResult, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}
	renter, err := s.repo.GetUser(ctx, renterID)
	if err != nil {
		return nil, err
	}
	return s.createRent(ctx, renter, req)
}

// CreateGuestRent resolves or creates a guest user by email, then books like CreateRent.
// Requests are rate limited per email address.
func (s *RentalService) CreateGuestRent(ctx context.Context, guest models.GuestInfo, req RentRequest) (*CreateRentResult, error) {
	if err := s.validate.Struct(guest); err != nil {
		return nil, validationError(err)
	}
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		key := "guest_rent:" + strings.ToLower(strings.TrimSpace(guest.Email))
		allowed, err := s.limiter.CheckRateLimit(ctx, key, s.opts.GuestLimit, s.opts.GuestWindow)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Guest rate limit check failed")
		} else if !allowed {
			return nil, fmt.Errorf("%w: too many guest requests for %s", domain.ErrRateLimited, guest.Email)
		}
	}

	user, err := s.repo.GetOrCreateGuest(ctx, guest)
	if err != nil {
		return nil, err
	}
	return s.createRent(ctx, user, req)
}

func (s *RentalService) createRent(ctx context.Context, renter *models.User, req RentRequest) (*CreateRentResult, error) {
	car, err := s.repo.GetCar(ctx, req.CarID)
	if err != nil {
		return nil, err
	}
	if car.Deleted {
		return nil, domain.NotFoundf("car %d", req.CarID)
	}

	available, err := s.repo.IsCarAvailable(ctx, car.ID, req.PlannedStart, req.PlannedEnd)
	if err != nil {
		return nil, err
	}

	pickup := req.PickupDepotID
	if pickup == 0 {
		pickup = car.DepotID
	}
	rent := &models.Rent{
		RenterID:       renter.ID,
		CarID:          car.ID,
		PlannedStart:   req.PlannedStart,
		PlannedEnd:     req.PlannedEnd,
		InvoiceRequest: req.InvoiceRequest,
		PickupDepotID:  pickup,
	}
	if err := s.repo.CreateRent(ctx, rent); err != nil {
		metrics.IncTransition("create", "error")
		return nil, err
	}
	metrics.IncTransition("create", "ok")
	s.pub.rent(models.EventRentCreated, rent, renter.ID, "")

	result := &CreateRentResult{Rent: rent}
	if s.waitlist == nil {
		return result, nil
	}
	if !available {
		entry, err := s.waitlist.enqueue(ctx, car.ID, renter.ID, s.clock().UTC())
		if err != nil {
			s.logger.Error().Err(err).Int64("rent_id", rent.ID).Msg("Failed to queue renter for taken car")
		} else {
			result.Queued = entry
		}
		return result, nil
	}
	if _, err := s.waitlist.MarkBooked(ctx, car.ID, renter.ID); err != nil {
		s.logger.Error().Err(err).Int64("rent_id", rent.ID).Msg("Failed to mark waiting entry booked")
	}
	return result, nil
}

// GetRent returns a rent visible to the actor: staff see all rents, renters their own.
func (s *RentalService) GetRent(ctx context.Context, actor models.Actor, id int64) (*models.Rent, error) {
	rent, err := s.repo.GetRent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && rent.RenterID != actor.UserID {
		return nil, domain.NotFoundf("rent %d", id)
	}
	return rent, nil
}

// ListRents lists rents by lifecycle filter. Non-staff actors only ever see their own rents.
func (s *RentalService) ListRents(ctx context.Context, actor models.Actor, filter string, userID *int64) ([]*models.Rent, error) {
	f, ok := models.ParseRentFilter(filter)
	if !ok {
		return nil, domain.Validationf("unknown rent filter %q", filter)
	}
	if !actor.IsStaff() {
		if userID != nil && *userID != actor.UserID {
			return nil, fmt.Errorf("%w: rents of user %d", domain.ErrUnauthorized, *userID)
		}
		own := actor.UserID
		userID = &own
	}
	return s.repo.ListRents(ctx, models.RentQuery{Filter: f, UserID: userID})
}
