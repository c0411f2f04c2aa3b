package models

import "time"

const (
	// DefaultProbeWindow is the interval probed when deciding whether a car is free right now.
	DefaultProbeWindow = 24 * time.Hour

	// DefaultHoldWindow is how long a notified waiting-list entry keeps its claim.
	DefaultHoldWindow = 24 * time.Hour

	// DefaultMaxRentDays caps the planned interval of a single rent.
	DefaultMaxRentDays = 90

	// NotificationQueueSize is the in-memory fallback queue size of the notification worker.
	NotificationQueueSize = 1000

	// GuestRentLimit is how many guest rents one email may request per window.
	GuestRentLimit  = 5
	GuestRentWindow = time.Hour

	AvailabilityCacheTTL = 5 * time.Minute
)

// Event types published on the in-process bus.
const (
	EventRentCreated      = "rent_created"
	EventRentApproved     = "rent_approved"
	EventRentRejected     = "rent_rejected"
	EventRentIssued       = "rent_issued"
	EventRentReturned     = "rent_returned"
	EventWaitlistJoined   = "waitlist_joined"
	EventWaitlistNotified = "waitlist_notified"
	EventWaitlistLeft     = "waitlist_left"
	EventReceiptUpdated   = "receipt_updated"
)
