package main

import (
	"fmt"
	"strconv"

	"carrental/internal/database"
	"carrental/internal/export"
	"carrental/internal/models"
	"carrental/internal/repository"
	"carrental/internal/service"
	"carrental/internal/worker"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load depots, cars and accounts from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			f, err := loadFleetFile(file)
			if err != nil {
				return err
			}
			rep, err := seedFleet(ctx, e.db, service.NewUserService(e.db, e.logger), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d depots, %d cars, %d staff, %d customers\n",
				rep.Depots, rep.Cars, rep.Staff, rep.Customers)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "configs/fleet.yaml", "Fleet YAML file")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write Excel workbooks",
	}
	cmd.AddCommand(newExportRentsCmd())
	cmd.AddCommand(newExportReceiptCmd())
	return cmd
}

func newExportRentsCmd() *cobra.Command {
	var (
		filter string
		userID int64
		carID  int64
	)

	cmd := &cobra.Command{
		Use:   "rents",
		Short: "Export rents to a workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, ok := models.ParseRentFilter(filter)
			if !ok {
				return fmt.Errorf("unknown filter %q", filter)
			}
			q := models.RentQuery{Filter: f}
			if userID > 0 {
				q.UserID = &userID
			}
			if carID > 0 {
				q.CarID = &carID
			}

			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			path, err := export.New(e.db, e.cfg.Billing.OutputDir, e.cfg.Exports.Path, e.logger).ExportRents(ctx, q)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all, open, running or closed")
	cmd.Flags().Int64Var(&userID, "user", 0, "Only rents of this user")
	cmd.Flags().Int64Var(&carID, "car", 0, "Only rents of this car")
	return cmd
}

func newExportReceiptCmd() *cobra.Command {
	var byRent bool

	cmd := &cobra.Command{
		Use:   "receipt <id>",
		Short: "Render a receipt workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if byRent {
				receipt, err := e.db.GetReceiptByRent(ctx, id)
				if err != nil {
					return err
				}
				id = receipt.ID
			}

			path, err := export.New(e.db, e.cfg.Billing.OutputDir, e.cfg.Exports.Path, e.logger).RenderReceipt(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&byRent, "rent", false, "Treat the id as a rent id")
	return cmd
}

func newBackupCmd() *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			backups := database.NewBackupService(e.db, e.cfg.Backup, e.logger)
			path, err := backups.PerformBackup(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if prune {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d old backups\n", backups.CleanupOldBackups())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", true, "Apply retention after the backup")
	return cmd
}

func newExpireHoldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-holds",
		Short: "Cancel waiting-list holds that ran out and notify the next users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			// Only enqueue here: the rows land in the outbox (and on the redis queue when
			// configured) and the API process delivers them.
			var opts []worker.Option
			if e.cfg.Redis.Address != "" {
				client := repository.NewRedisClient(e.cfg.Redis)
				defer client.Close()
				opts = append(opts, worker.WithRedis(client))
			}
			outbox := worker.NewNotificationWorker(e.db, nil, worker.RetryPolicy{}, e.logger, opts...)
			waitlist := service.NewWaitingListService(e.db, outbox, nil, service.WaitingListOptions{
				ProbeWindow: e.cfg.Rental.ProbeWindow,
				HoldWindow:  e.cfg.Rental.HoldWindow,
			}, nil, e.logger)
			n, err := waitlist.ExpireHolds(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d holds\n", n)
			return nil
		},
	}
}

func newStaffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "List staff and admin accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout()
			defer cancel()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			staff, err := service.NewUserService(e.db, e.logger).GetStaff(ctx)
			if err != nil {
				return err
			}
			for _, u := range staff {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", u.ID, u.Role, u.Email, u.FullName())
			}
			return nil
		},
	}
	return cmd
}
