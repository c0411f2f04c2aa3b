package models

import "time"

// RentState is the explicit lifecycle state of a rent.
type RentState string

const (
	RentRequested RentState = "requested"
	RentApproved  RentState = "approved"
	RentIssued    RentState = "issued"
	RentReturned  RentState = "returned"
)

// RentStates lists every lifecycle state in order.
var RentStates = []RentState{RentRequested, RentApproved, RentIssued, RentReturned}

func (s RentState) Valid() bool {
	for _, v := range RentStates {
		if s == v {
			return true
		}
	}
	return false
}

// Blocking reports whether a rent in this state occupies its car for the planned interval.
func (s RentState) Blocking() bool {
	return s == RentApproved || s == RentIssued
}

// BlockingStates returns the states for which Blocking is true.
func BlockingStates() []RentState {
	var out []RentState
	for _, s := range RentStates {
		if s.Blocking() {
			out = append(out, s)
		}
	}
	return out
}

type Rent struct {
	ID               int64      `json:"id"`
	RenterID         int64      `json:"renter_id"`
	CarID            int64      `json:"car_id"`
	State            RentState  `json:"state"`
	PlannedStart     time.Time  `json:"planned_start"`
	PlannedEnd       time.Time  `json:"planned_end"`
	ActualStart      *time.Time `json:"actual_start,omitempty"`
	ActualEnd        *time.Time `json:"actual_end,omitempty"`
	ApprovedBy       *int64     `json:"approved_by,omitempty"`
	IssuedBy         *int64     `json:"issued_by,omitempty"`
	TakenBackBy      *int64     `json:"taken_back_by,omitempty"`
	StartingOdometer *int64     `json:"starting_odometer,omitempty"`
	EndingOdometer   *int64     `json:"ending_odometer,omitempty"`
	InvoiceRequest   bool       `json:"invoice_request"`
	ReceiptID        *int64     `json:"receipt_id,omitempty"`
	IssuedAt         *time.Time `json:"issued_at,omitempty"` // receipt issue date
	TotalCost        *int64     `json:"total_cost,omitempty"`
	PickupDepotID    int64      `json:"pickup_depot_id"`
	ReturnDepotID    *int64     `json:"return_depot_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Version          int64      `json:"version"`
}

// RentFilter selects rents by lifecycle phase.
type RentFilter string

const (
	RentFilterAll     RentFilter = "all"
	RentFilterOpen    RentFilter = "open"    // requested or approved, not handed over yet
	RentFilterRunning RentFilter = "running" // issued, not returned
	RentFilterClosed  RentFilter = "closed"  // returned
)

func ParseRentFilter(s string) (RentFilter, bool) {
	switch RentFilter(s) {
	case "":
		return RentFilterAll, true
	case RentFilterAll, RentFilterOpen, RentFilterRunning, RentFilterClosed:
		return RentFilter(s), true
	}
	return "", false
}

// States returns the rent states matched by the filter; nil means every state.
func (f RentFilter) States() []RentState {
	switch f {
	case RentFilterOpen:
		return []RentState{RentRequested, RentApproved}
	case RentFilterRunning:
		return []RentState{RentIssued}
	case RentFilterClosed:
		return []RentState{RentReturned}
	default:
		return nil
	}
}

// RentQuery is the store-level query for ListRents.
type RentQuery struct {
	Filter RentFilter
	UserID *int64
	CarID  *int64
}
