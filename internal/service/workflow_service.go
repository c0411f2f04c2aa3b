package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BillingOptions struct {
	Seller       models.Party
	NumberPrefix string
}

// ReturnRequest is the staff input for taking a car back.
type ReturnRequest struct {
	ActualEnd      time.Time
	EndingOdometer int64
	ReturnDepotID  *int64
}

// WorkflowService drives staff transitions: approve, reject, issue and return.
type WorkflowService struct {
	repo     domain.Repository
	waitlist *WaitingListService
	notifier domain.NotificationEnqueuer
	pub      publisher
	billing  BillingOptions
	clock    domain.Clock
	logger   *zerolog.Logger
}

func NewWorkflowService(repo domain.Repository, waitlist *WaitingListService, notifier domain.NotificationEnqueuer, bus domain.EventPublisher, billing BillingOptions, clock domain.Clock, logger *zerolog.Logger) *WorkflowService {
	if billing.NumberPrefix == "" {
		billing.NumberPrefix = "RC"
	}
	if clock == nil {
		clock = time.Now
	}
	return &WorkflowService{
		repo:     repo,
		waitlist: waitlist,
		notifier: notifier,
		pub:      publisher{bus: bus, logger: logger},
		billing:  billing,
		clock:    clock,
		logger:   logger,
	}
}

func requireStaff(actor models.Actor, op string, rentID int64) error {
	if actor.IsStaff() && actor.UserID != 0 {
		return nil
	}
	return domain.NewTransitionError(op, "rent", rentID, "", domain.ErrUnauthorized)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Approve re-checks the car's calendar and records the approver in one transaction.
// With an invoice request it also issues the receipt at the approval estimate.
// Approving a rent that is already past requested returns it unchanged.
func (s *WorkflowService) Approve(ctx context.Context, actor models.Actor, rentID int64) (*models.Rent, error) {
	if err := requireStaff(actor, "approve", rentID); err != nil {
		return nil, err
	}

	current, err := s.repo.GetRent(ctx, rentID)
	if err != nil {
		return nil, err
	}
	var bill domain.BillFunc
	if current.InvoiceRequest && current.State == models.RentRequested {
		buyer, err := s.repo.GetUser(ctx, current.RenterID)
		if err != nil {
			return nil, err
		}
		bill = s.billFunc(buyer)
	}

	rent, changed, err := s.repo.ApproveRent(ctx, rentID, actor.UserID, bill)
	metrics.IncTransition("approve", result(err))
	if err != nil {
		return nil, err
	}
	if !changed {
		return rent, nil
	}

	s.pub.rent(models.EventRentApproved, rent, actor.UserID, "")
	if rent.ReceiptID != nil {
		s.pub.rent(models.EventReceiptUpdated, rent, actor.UserID, "")
	}
	body := fmt.Sprintf("Your rent #%d for %s to %s was approved.", rent.ID,
		rent.PlannedStart.Format(time.RFC1123), rent.PlannedEnd.Format(time.RFC1123))
	if rent.TotalCost != nil {
		body += " Estimated cost: " + formatAmount(*rent.TotalCost) + "."
	}
	enqueueNotification(ctx, s.notifier, s.logger, rent.RenterID, models.EventRentApproved, "Rent approved", body)

	// A renter who was queued and then notified holds the car until approval.
	if s.waitlist != nil {
		if _, err := s.waitlist.MarkBooked(ctx, rent.CarID, rent.RenterID); err != nil {
			s.logger.Error().Err(err).Int64("rent_id", rent.ID).Msg("Failed to mark waiting entry booked")
		}
	}

	s.logger.Info().Int64("rent_id", rent.ID).Int64("staff_id", actor.UserID).Msg("Rent approved")
	return rent, nil
}

// Reject deletes a requested rent. Any other state is InvalidState.
func (s *WorkflowService) Reject(ctx context.Context, actor models.Actor, rentID int64, reason string) error {
	if err := requireStaff(actor, "reject", rentID); err != nil {
		return err
	}

	rent, err := s.repo.RejectRent(ctx, rentID)
	metrics.IncTransition("reject", result(err))
	if err != nil {
		return err
	}

	s.pub.rent(models.EventRentRejected, rent, actor.UserID, reason)
	body := fmt.Sprintf("Your rent request #%d was rejected.", rent.ID)
	if reason != "" {
		body += " Reason: " + reason
	}
	enqueueNotification(ctx, s.notifier, s.logger, rent.RenterID, models.EventRentRejected, "Rent rejected", body)

	s.logger.Info().Int64("rent_id", rent.ID).Int64("staff_id", actor.UserID).Str("reason", reason).Msg("Rent rejected")
	return nil
}

// Issue hands the car over. A zero actualStart means now.
func (s *WorkflowService) Issue(ctx context.Context, actor models.Actor, rentID int64, actualStart time.Time) (*models.Rent, error) {
	if err := requireStaff(actor, "issue", rentID); err != nil {
		return nil, err
	}
	if actualStart.IsZero() {
		actualStart = s.clock()
	}

	rent, err := s.repo.IssueRent(ctx, rentID, actor.UserID, actualStart.UTC())
	metrics.IncTransition("issue", result(err))
	if err != nil {
		return nil, err
	}

	s.pub.rent(models.EventRentIssued, rent, actor.UserID, "")
	s.logger.Info().Int64("rent_id", rent.ID).Int64("staff_id", actor.UserID).Msg("Rent issued")
	return rent, nil
}

// Return takes the car back, sets the final price from the distance driven and
// passes the car to the next user in its waiting list.
func (s *WorkflowService) Return(ctx context.Context, actor models.Actor, rentID int64, req ReturnRequest) (*models.Rent, error) {
	if err := requireStaff(actor, "return", rentID); err != nil {
		return nil, err
	}
	if req.EndingOdometer < 0 {
		return nil, domain.Validationf("ending odometer must not be negative")
	}
	if req.ActualEnd.IsZero() {
		req.ActualEnd = s.clock()
	}

	rent, err := s.repo.ReturnRent(ctx, domain.ReturnParams{
		RentID:         rentID,
		StaffID:        actor.UserID,
		ActualEnd:      req.ActualEnd.UTC(),
		EndingOdometer: req.EndingOdometer,
		ReturnDepotID:  req.ReturnDepotID,
	}, returnPrice)
	metrics.IncTransition("return", result(err))
	if err != nil {
		return nil, err
	}

	s.pub.rent(models.EventRentReturned, rent, actor.UserID, "")
	if rent.ReceiptID != nil {
		s.pub.rent(models.EventReceiptUpdated, rent, actor.UserID, "")
	}
	if rent.TotalCost != nil {
		enqueueNotification(ctx, s.notifier, s.logger, rent.RenterID, models.EventRentReturned, "Rent closed",
			fmt.Sprintf("Your rent #%d is closed. Total cost: %s.", rent.ID, formatAmount(*rent.TotalCost)))
	}
	s.logger.Info().Int64("rent_id", rent.ID).Int64("staff_id", actor.UserID).Msg("Rent returned")

	if s.waitlist != nil {
		if _, err := s.waitlist.NotifyNext(ctx, rent.CarID); err != nil {
			s.logger.Error().Err(err).Int64("car_id", rent.CarID).Msg("Failed to notify waiting list")
		}
	}
	return rent, nil
}

// billFunc prices the approval estimate and snapshots both parties on the receipt.
func (s *WorkflowService) billFunc(buyer *models.User) domain.BillFunc {
	return func(car *models.Car, rent *models.Rent) (*models.Receipt, error) {
		days := pricing.BillableDays(rent.PlannedStart, rent.PlannedEnd)
		total := pricing.ForApproval(car, rent.PlannedStart, rent.PlannedEnd)
		issued := s.clock().UTC()
		return &models.Receipt{
			Number:    s.receiptNumber(issued),
			TotalCost: total,
			IssueDate: issued,
			Seller:    s.billing.Seller,
			Buyer: models.Party{
				Name:  buyer.FullName(),
				Email: buyer.Email,
			},
			Items: []models.LineItem{{
				Description: fmt.Sprintf("%s %s (%s), %d day(s)", car.Brand, car.Model, car.LicencePlate, days),
				Quantity:    days,
				UnitPrice:   car.DayRate,
				Total:       total,
			}},
		}, nil
	}
}

func (s *WorkflowService) receiptNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("%s-%s-%s", s.billing.NumberPrefix, at.Format("20060102"), suffix)
}

// returnPrice bills the driven distance at the car's rate.
func returnPrice(car *models.Car, rent *models.Rent) (int64, []models.LineItem) {
	var start, end int64
	if rent.StartingOdometer != nil {
		start = *rent.StartingOdometer
	}
	if rent.EndingOdometer != nil {
		end = *rent.EndingOdometer
	}
	total := pricing.ForReturn(car, start, end)
	driven := end - start
	if driven < 0 {
		driven = 0
	}
	return total, []models.LineItem{{
		Description: fmt.Sprintf("%s %s (%s), %d km driven", car.Brand, car.Model, car.LicencePlate, driven),
		Quantity:    driven,
		UnitPrice:   car.DayRate,
		Total:       total,
	}}
}

// formatAmount renders minor units as a decimal amount.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
