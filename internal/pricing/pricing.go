// Package pricing turns rental intervals and odometer readings into cost.
// All amounts are integer minor currency units.
package pricing

import (
	"time"

	"carrental/internal/models"
)

const hoursPerDay = 24

// BillableDays counts started days in [start, end), never less than one.
func BillableDays(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 1
	}
	days := int64(d / (hoursPerDay * time.Hour))
	if d%(hoursPerDay*time.Hour) != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// ForApproval is the estimate charged when a rent is approved.
func ForApproval(car *models.Car, plannedStart, plannedEnd time.Time) int64 {
	return BillableDays(plannedStart, plannedEnd) * car.DayRate
}

// ForReturn is the final cost, computed from distance driven times the car's rate.
func ForReturn(car *models.Car, startOdometer, endOdometer int64) int64 {
	driven := endOdometer - startOdometer
	if driven < 0 {
		driven = 0
	}
	return driven * car.DayRate
}
