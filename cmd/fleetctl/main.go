// Command fleetctl is the operator CLI: fleet seeding and maintenance, exports,
// backups and waiting-list upkeep against the same database the API serves.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"carrental/internal/config"
	"carrental/internal/database"
	"carrental/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultTimeout = 5 * time.Minute

var configFile string

// env is what every subcommand needs: loaded config, a logger and an open database.
type env struct {
	cfg    *config.Config
	logger *zerolog.Logger
	db     *database.DB
	closer io.Closer
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.closer != nil {
		_ = e.closer.Close()
	}
}

func openEnv() (*env, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cliLogger := logging.Component(logger, "fleetctl")

	db, err := database.NewDB(cfg.Database.Path, cliLogger, database.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	return &env{cfg: cfg, logger: cliLogger, db: db, closer: closer}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operate the car rental fleet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&configFile, "config", defaultConfig, "Config file path")

	root.AddCommand(newSeedCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newBackupCmd())
	root.AddCommand(newExpireHoldsCmd())
	root.AddCommand(newStaffCmd())
	root.AddCommand(newCarCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultTimeout)
}
