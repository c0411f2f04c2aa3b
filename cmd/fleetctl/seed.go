package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"carrental/internal/domain"
	"carrental/internal/models"
	"carrental/internal/service"

	"gopkg.in/yaml.v3"
)

// fleetFile is the seed document: depots first, then cars referencing depots by name.
type fleetFile struct {
	Depots    []models.Depot `yaml:"depots"`
	Cars      []seedCar      `yaml:"cars"`
	Staff     []models.User  `yaml:"staff"`
	Customers []seedCustomer `yaml:"customers"`
}

type seedCar struct {
	models.Car `yaml:",inline"`
	Depot      string `yaml:"depot"`
}

type seedCustomer struct {
	Email      string `yaml:"email"`
	FirstName  string `yaml:"first_name"`
	LastName   string `yaml:"last_name"`
	Phone      string `yaml:"phone"`
	TelegramID int64  `yaml:"telegram_id"`
}

type seedStore interface {
	service.UserStore
	UpsertDepot(ctx context.Context, depot *models.Depot) error
	UpsertCar(ctx context.Context, car *models.Car) error
}

type seedReport struct {
	Depots    int
	Cars      int
	Staff     int
	Customers int
}

func loadFleetFile(path string) (*fleetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fleetFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// seedFleet upserts everything in f. It is safe to run repeatedly.
func seedFleet(ctx context.Context, store seedStore, users *service.UserService, f *fleetFile) (seedReport, error) {
	var rep seedReport

	depotIDs := make(map[string]int64, len(f.Depots))
	for i := range f.Depots {
		d := f.Depots[i]
		if err := store.UpsertDepot(ctx, &d); err != nil {
			return rep, err
		}
		depotIDs[d.Name] = d.ID
		rep.Depots++
	}

	for i := range f.Cars {
		c := f.Cars[i]
		if c.LicencePlate == "" {
			return rep, domain.Validationf("car #%d has no licence plate", i+1)
		}
		if c.Depot != "" {
			id, ok := depotIDs[c.Depot]
			if !ok {
				return rep, domain.Validationf("car %s references unknown depot %q", c.LicencePlate, c.Depot)
			}
			c.DepotID = id
		}
		car := c.Car
		if err := store.UpsertCar(ctx, &car); err != nil {
			return rep, err
		}
		rep.Cars++
	}

	for i := range f.Staff {
		u := f.Staff[i]
		if u.Role == "" {
			u.Role = models.RoleStaff
		}
		if err := users.SaveStaff(ctx, &u); err != nil {
			return rep, fmt.Errorf("staff %s: %w", u.Email, err)
		}
		rep.Staff++
	}

	for _, c := range f.Customers {
		_, err := users.Register(ctx, service.RegisterUserRequest{
			Email:      c.Email,
			FirstName:  c.FirstName,
			LastName:   c.LastName,
			Phone:      c.Phone,
			TelegramID: c.TelegramID,
		})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("customer %s: %w", c.Email, err)
		}
		rep.Customers++
	}
	return rep, nil
}
