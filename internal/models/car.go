package models

import "time"

type Car struct {
	ID                int64     `yaml:"id" json:"id"`
	Brand             string    `yaml:"brand" json:"brand"`
	Model             string    `yaml:"model" json:"model"`
	LicencePlate      string    `yaml:"licence_plate" json:"licence_plate"`
	DayRate           int64     `yaml:"day_rate" json:"day_rate"`
	Odometer          int64     `yaml:"odometer" json:"odometer"`
	FuelType          string    `yaml:"fuel_type" json:"fuel_type"`
	LicenceClass      string    `yaml:"licence_class" json:"licence_class"`
	InProperCondition bool      `yaml:"in_proper_condition" json:"in_proper_condition"`
	Deleted           bool      `yaml:"-" json:"deleted"`
	IsRented          bool      `yaml:"-" json:"is_rented"`
	DepotID           int64     `yaml:"depot_id" json:"depot_id"`
	CreatedAt         time.Time `yaml:"-" json:"created_at"`
	UpdatedAt         time.Time `yaml:"-" json:"updated_at"`
}

// Rentable reports whether the car may take new bookings at all.
func (c *Car) Rentable() bool {
	return !c.Deleted && c.InProperCondition
}

// CarSummary is the browse/search projection of a car.
type CarSummary struct {
	ID           int64  `json:"id"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	LicencePlate string `json:"licence_plate"`
	DayRate      int64  `json:"day_rate"`
	FuelType     string `json:"fuel_type"`
	LicenceClass string `json:"licence_class"`
	DepotID      int64  `json:"depot_id"`
}

func (c *Car) Summary() CarSummary {
	return CarSummary{
		ID:           c.ID,
		Brand:        c.Brand,
		Model:        c.Model,
		LicencePlate: c.LicencePlate,
		DayRate:      c.DayRate,
		FuelType:     c.FuelType,
		LicenceClass: c.LicenceClass,
		DepotID:      c.DepotID,
	}
}

type Depot struct {
	ID      int64  `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
}
