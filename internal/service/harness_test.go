package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"carrental/internal/database"
	"carrental/internal/events"
	"carrental/internal/models"
	"carrental/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

type sentNote struct {
	UserID int64
	Kind   string
	Body   string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []sentNote
}

func (r *recordingNotifier) Enqueue(_ context.Context, userID int64, kind, _, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, sentNote{UserID: userID, Kind: kind, Body: body})
	return nil
}

func (r *recordingNotifier) kinds(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notes {
		if n.UserID == userID {
			out = append(out, n.Kind)
		}
	}
	return out
}

type harness struct {
	db       *database.DB
	now      time.Time
	notes    *recordingNotifier
	bus      *events.EventBus
	seen     []string
	cache    *repository.MemoryAvailabilityCache
	avail    *AvailabilityService
	waitlist *WaitingListService
	rental   *RentalService
	workflow *WorkflowService
	users    *UserService

	depot  *models.Depot
	staff  models.Actor
	renter *models.User
	other  *models.User
	car    *models.Car
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{now: day0.Add(-2 * time.Hour), notes: &recordingNotifier{}}
	clock := func() time.Time { return h.now }
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger, database.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	h.db = db

	h.bus = events.NewEventBus(&logger)
	h.bus.SubscribeMany([]string{
		models.EventRentCreated, models.EventRentApproved, models.EventRentRejected,
		models.EventRentIssued, models.EventRentReturned, models.EventReceiptUpdated,
		models.EventWaitlistJoined, models.EventWaitlistNotified, models.EventWaitlistLeft,
	}, func(e *events.Event) error {
		h.seen = append(h.seen, e.Type)
		return nil
	})

	h.cache = repository.NewMemoryAvailabilityCache(time.Minute)
	h.avail = NewAvailabilityService(db, h.cache, time.Minute, &logger)
	h.bus.SubscribeMany(CalendarEvents, h.avail.HandleCalendarEvent)
	h.waitlist = NewWaitingListService(db, h.notes, h.bus, WaitingListOptions{}, clock, &logger)
	h.rental = NewRentalService(db, h.waitlist, h.cache, h.bus, RentalOptions{MaxRentDays: 30, GuestLimit: 2}, clock, &logger)
	h.workflow = NewWorkflowService(db, h.waitlist, h.notes, h.bus, BillingOptions{
		Seller:       models.Party{Name: "Fleet Ltd", Address: "1 Depot Rd"},
		NumberPrefix: "FL",
	}, clock, &logger)
	h.users = NewUserService(db, &logger)

	ctx := context.Background()
	h.depot = &models.Depot{Name: "Central", Address: "1 Main St"}
	require.NoError(t, db.UpsertDepot(ctx, h.depot))

	staff := &models.User{Email: "desk@example.com", FirstName: "Sam", Role: models.RoleStaff}
	require.NoError(t, db.CreateUser(ctx, staff))
	h.staff = models.Actor{UserID: staff.ID, Role: models.RoleStaff}

	h.renter = &models.User{Email: "rita@example.com", FirstName: "Rita", LastName: "Renter"}
	require.NoError(t, db.CreateUser(ctx, h.renter))
	h.other = &models.User{Email: "otto@example.com", FirstName: "Otto"}
	require.NoError(t, db.CreateUser(ctx, h.other))

	h.car = h.addCar(t, "AB-100")
	return h
}

func (h *harness) addCar(t *testing.T, plate string) *models.Car {
	t.Helper()
	car := &models.Car{
		Brand:             "Skoda",
		Model:             "Octavia",
		LicencePlate:      plate,
		DayRate:           10000,
		Odometer:          1000,
		FuelType:          "petrol",
		LicenceClass:      "B",
		InProperCondition: true,
		DepotID:           h.depot.ID,
	}
	require.NoError(t, h.db.CreateCar(context.Background(), car))
	return car
}

func (h *harness) actor(u *models.User) models.Actor {
	return models.Actor{UserID: u.ID, Role: models.RoleCustomer}
}

// book creates a rent for the renter and returns it.
func (h *harness) book(t *testing.T, renter *models.User, carID int64, start, end time.Time, invoice bool) *CreateRentResult {
	t.Helper()
	res, err := h.rental.CreateRent(context.Background(), renter.ID, RentRequest{
		CarID:          carID,
		PlannedStart:   start,
		PlannedEnd:     end,
		InvoiceRequest: invoice,
	})
	require.NoError(t, err)
	return res
}

// outOnRent books, approves and issues a rent on the harness car.
func (h *harness) outOnRent(t *testing.T) *models.Rent {
	t.Helper()
	ctx := context.Background()
	res := h.book(t, h.renter, h.car.ID, day0, day0.Add(24*time.Hour), false)
	_, err := h.workflow.Approve(ctx, h.staff, res.Rent.ID)
	require.NoError(t, err)
	rent, err := h.workflow.Issue(ctx, h.staff, res.Rent.ID, day0)
	require.NoError(t, err)
	return rent
}
