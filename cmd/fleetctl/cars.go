package main

import (
	"fmt"
	"io"
	"strconv"

	"carrental/internal/models"
	"carrental/internal/repository"
	"carrental/internal/service"

	"github.com/spf13/cobra"
)

// operator is the identity fleetctl acts as.
var operator = models.Actor{Role: models.RoleAdmin}

func newCarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "car",
		Short: "Inspect and maintain fleet cars",
	}
	cmd.AddCommand(newCarListCmd())
	cmd.AddCommand(newCarConditionCmd())
	cmd.AddCommand(newCarRetireCmd())
	return cmd
}

// fleetService invalidates the shared redis listing cache when one is configured.
// Without redis, API replicas only see the change once their own cache TTL runs out.
func fleetService(e *env) (*service.FleetService, func()) {
	var avail *service.AvailabilityService
	done := func() {}
	if e.cfg.Redis.Address != "" {
		client := repository.NewRedisClient(e.cfg.Redis)
		avail = service.NewAvailabilityService(e.db, repository.NewRedisAvailabilityCache(client), e.cfg.Rental.CacheTTL, e.logger)
		done = func() { _ = client.Close() }
	}
	return service.NewFleetService(e.db, avail, e.logger), done
}

func parseCarID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid car id %q", arg)
	}
	return id, nil
}

func printCars(w io.Writer, cars []*models.Car) {
	for _, c := range cars {
		status := "ok"
		switch {
		case c.Deleted:
			status = "retired"
		case c.IsRented:
			status = "rented"
		case !c.InProperCondition:
			status = "unfit"
		}
		fmt.Fprintf(w, "%d\t%s\t%s %s\t%s\tdepot=%d\n", c.ID, c.LicencePlate, c.Brand, c.Model, status, c.DepotID)
	}
}

func newCarListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cars",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			fleet, done := fleetService(e)
			defer done()
			cars, err := fleet.ListCars(ctx, all)
			if err != nil {
				return err
			}
			printCars(cmd.OutOrStdout(), cars)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include retired cars")
	return cmd
}

func newCarConditionCmd() *cobra.Command {
	var unfit bool

	cmd := &cobra.Command{
		Use:   "condition <id>",
		Short: "Mark a car fit for rent, or unfit with --unfit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCarID(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			fleet, done := fleetService(e)
			defer done()
			if err := fleet.SetCondition(ctx, operator, id, !unfit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "car %d in proper condition: %t\n", id, !unfit)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unfit, "unfit", false, "Take the car out of service")
	return cmd
}

func newCarRetireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retire <id>",
		Short: "Remove a car from the fleet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCarID(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			fleet, done := fleetService(e)
			defer done()
			if err := fleet.Retire(ctx, operator, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "car %d retired\n", id)
			return nil
		},
	}
}
