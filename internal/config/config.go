package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"carrental/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Rental     RentalConfig     `yaml:"rental"`
	Notify     NotifyConfig     `yaml:"notify"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Billing    BillingConfig    `yaml:"billing"`
	Exports    ExportConfig     `yaml:"exports"`
}

type RentalConfig struct {
	MaxRentDays int           `yaml:"max_rent_days"`
	HoldWindow  time.Duration `yaml:"hold_window"`
	ProbeWindow time.Duration `yaml:"probe_window"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	GuestLimit  int           `yaml:"guest_limit"`
	GuestWindow time.Duration `yaml:"guest_window"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey binds an API key to a caller identity.
type APIClientKey struct {
	Key         string      `yaml:"key"`
	Name        string      `yaml:"name"`
	Role        models.Role `yaml:"role"`
	UserID      int64       `yaml:"user_id"`
	Permissions []string    `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type NotifyConfig struct {
	TelegramToken  string        `yaml:"telegram_token"`
	SendGridAPIKey string        `yaml:"sendgrid_api_key"`
	FromEmail      string        `yaml:"from_email"`
	FromName       string        `yaml:"from_name"`
	BatchSize      int           `yaml:"batch_size"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Retry          RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type SchedulerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	HoldExpirySpec string `yaml:"hold_expiry_spec"`
	BackupSpec     string `yaml:"backup_spec"`
}

type BillingConfig struct {
	Seller       models.Party `yaml:"seller"`
	OutputDir    string       `yaml:"output_dir"`
	NumberPrefix string       `yaml:"number_prefix"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Load reads an optional .env, expands ${VARS} in the YAML file and applies defaults.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Rental.MaxRentDays < 1 {
		return errors.New("rental.max_rent_days must be positive")
	}
	if c.Notify.SendGridAPIKey != "" && c.Notify.FromEmail == "" {
		return errors.New("notify.from_email is required when sendgrid is configured")
	}
	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
		switch k.Role {
		case models.RoleCustomer, models.RoleGuest, models.RoleStaff, models.RoleAdmin:
		default:
			return fmt.Errorf("api key '%s' has unknown role %q", k.Name, k.Role)
		}
		if (k.Role == models.RoleStaff || k.Role == models.RoleAdmin) && k.UserID == 0 {
			return fmt.Errorf("staff api key '%s' needs user_id", k.Name)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "carrental"
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = 5 * time.Second
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Rental.MaxRentDays == 0 {
		c.Rental.MaxRentDays = models.DefaultMaxRentDays
	}
	if c.Rental.HoldWindow == 0 {
		c.Rental.HoldWindow = models.DefaultHoldWindow
	}
	if c.Rental.ProbeWindow == 0 {
		c.Rental.ProbeWindow = models.DefaultProbeWindow
	}
	if c.Rental.CacheTTL == 0 {
		c.Rental.CacheTTL = models.AvailabilityCacheTTL
	}
	if c.Rental.GuestLimit == 0 {
		c.Rental.GuestLimit = models.GuestRentLimit
	}
	if c.Rental.GuestWindow == 0 {
		c.Rental.GuestWindow = models.GuestRentWindow
	}

	if c.Notify.BatchSize == 0 {
		c.Notify.BatchSize = 10
	}
	if c.Notify.PollInterval == 0 {
		c.Notify.PollInterval = 5 * time.Second
	}
	if c.Notify.Retry.MaxRetries == 0 {
		c.Notify.Retry.MaxRetries = 5
	}
	if c.Notify.Retry.BaseDelay == 0 {
		c.Notify.Retry.BaseDelay = 2 * time.Second
	}
	if c.Notify.Retry.MaxDelay == 0 {
		c.Notify.Retry.MaxDelay = time.Minute
	}
	if c.Notify.FromName == "" {
		c.Notify.FromName = c.App.Name
	}

	if c.Scheduler.HoldExpirySpec == "" {
		c.Scheduler.HoldExpirySpec = "*/10 * * * *"
	}
	if c.Scheduler.BackupSpec == "" {
		c.Scheduler.BackupSpec = "0 3 * * *"
	}

	if c.Billing.OutputDir == "" {
		c.Billing.OutputDir = "receipts"
	}
	if c.Billing.NumberPrefix == "" {
		c.Billing.NumberPrefix = "R"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}
