package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carrental/internal/api"
	"carrental/internal/config"
	"carrental/internal/database"
	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/export"
	"carrental/internal/logging"
	"carrental/internal/metrics"
	"carrental/internal/models"
	"carrental/internal/notify"
	"carrental/internal/repository"
	"carrental/internal/scheduler"
	"carrental/internal/service"
	"carrental/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	logger := logging.Component(base, "api-main")
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(base, "database"), database.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := initCache(cfg, redisClient, logger)

	notifications := initNotificationWorker(cfg, db, redisClient, logging.Component(base, "notifications"))
	go notifications.Start(ctx)

	bus := events.NewEventBus(logger)
	exporter := export.New(db, cfg.Billing.OutputDir, cfg.Exports.Path, logging.Component(base, "export"))
	bus.Subscribe(models.EventReceiptUpdated, exporter.HandleReceiptEvent)

	clock := time.Now
	svcLogger := logging.Component(base, "service")
	availability := service.NewAvailabilityService(db, cache, cfg.Rental.CacheTTL, svcLogger)
	bus.SubscribeMany(service.CalendarEvents, availability.HandleCalendarEvent)

	waitlist := service.NewWaitingListService(db, notifications, bus, service.WaitingListOptions{
		ProbeWindow: cfg.Rental.ProbeWindow,
		HoldWindow:  cfg.Rental.HoldWindow,
	}, clock, svcLogger)
	rental := service.NewRentalService(db, waitlist, cache, bus, service.RentalOptions{
		MaxRentDays: cfg.Rental.MaxRentDays,
		GuestLimit:  cfg.Rental.GuestLimit,
		GuestWindow: cfg.Rental.GuestWindow,
	}, clock, svcLogger)
	workflow := service.NewWorkflowService(db, waitlist, notifications, bus, service.BillingOptions{
		Seller:       cfg.Billing.Seller,
		NumberPrefix: cfg.Billing.NumberPrefix,
	}, clock, svcLogger)

	sched, err := initScheduler(cfg, db, waitlist, logging.Component(base, "scheduler"))
	if err != nil {
		return err
	}
	if sched != nil {
		sched.Start()
		defer sched.Stop()
	}

	startMetrics(ctx, cfg, logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Availability: availability,
		Rental:       rental,
		Workflow:     workflow,
		Waitlist:     waitlist,
	}, db, logging.Component(base, "http"))

	return serve(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initCache prefers redis and falls back to process memory while redis is unreachable.
func initCache(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.AvailabilityCache {
	memory := repository.NewMemoryAvailabilityCache(cfg.Rental.CacheTTL)
	if client == nil {
		return memory
	}
	return repository.NewFailoverAvailabilityCache(repository.NewRedisAvailabilityCache(client), memory, logger)
}

func initNotificationWorker(cfg *config.Config, db *database.DB, client *redis.Client, logger *zerolog.Logger) *worker.NotificationWorker {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		bot, err := notify.NewTelegramBot(cfg.Notify.TelegramToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
		} else {
			senders = append(senders, notify.NewTelegramSender(bot))
		}
	}
	if cfg.Notify.SendGridAPIKey != "" {
		senders = append(senders, notify.NewEmailSender(
			notify.NewSendGridClient(cfg.Notify.SendGridAPIKey), cfg.Notify.FromEmail, cfg.Notify.FromName))
	}
	senders = append(senders, notify.NewLogSender(logger))

	router := notify.NewRouter(db, logger, senders...)
	retry := worker.RetryPolicyFromConfig(cfg.Notify.Retry)
	opts := []worker.Option{
		worker.WithPolling(cfg.Notify.PollInterval, cfg.Notify.BatchSize),
		// telegram allows about 30 messages per second per bot
		worker.WithSendRate(25, 5),
	}
	if client != nil {
		opts = append(opts, worker.WithRedis(client))
	}
	return worker.NewNotificationWorker(db, router, retry, logger, opts...)
}

func initScheduler(cfg *config.Config, db *database.DB, waitlist *service.WaitingListService, logger *zerolog.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}

	sched := scheduler.New(5*time.Minute, logger)
	if err := sched.Add("expire-holds", cfg.Scheduler.HoldExpirySpec, func(ctx context.Context) error {
		n, err := waitlist.ExpireHolds(ctx)
		if n > 0 {
			logger.Info().Int("expired", n).Msg("Waiting list holds expired")
		}
		return err
	}); err != nil {
		return nil, err
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup, logger)
		if err := sched.Add("backup", cfg.Scheduler.BackupSpec, backups.Run); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
