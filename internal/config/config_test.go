package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"carrental/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("CARRENTAL_TEST_KEY", "secret-key")

	yamlContent := `
database:
  path: "test.db"
rental:
  hold_window: 2h
api:
  auth:
    enabled: true
    api_keys:
      - key: "${CARRENTAL_TEST_KEY}"
        name: "desk"
        role: staff
        user_id: 7
        permissions: ["manage:rents"]
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Rental.HoldWindow != 2*time.Hour {
		t.Errorf("expected hold window 2h, got %s", cfg.Rental.HoldWindow)
	}
	if len(cfg.API.Auth.APIKeys) != 1 || cfg.API.Auth.APIKeys[0].Key != "secret-key" {
		t.Errorf("expected expanded api key, got %+v", cfg.API.Auth.APIKeys)
	}
	if cfg.API.Auth.APIKeys[0].Role != models.RoleStaff {
		t.Errorf("expected staff role, got %s", cfg.API.Auth.APIKeys[0].Role)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Rental:   RentalConfig{MaxRentDays: 30},
			},
			wantErr: false,
		},
		{
			name: "missing database path",
			cfg: Config{
				Rental: RentalConfig{MaxRentDays: 30},
			},
			wantErr: true,
		},
		{
			name: "sendgrid without sender",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Rental:   RentalConfig{MaxRentDays: 30},
				Notify:   NotifyConfig{SendGridAPIKey: "SG.x"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Rental.MaxRentDays != models.DefaultMaxRentDays {
		t.Errorf("expected default max rent days %d, got %d", models.DefaultMaxRentDays, cfg.Rental.MaxRentDays)
	}
	if cfg.Rental.HoldWindow != models.DefaultHoldWindow {
		t.Errorf("expected default hold window %s, got %s", models.DefaultHoldWindow, cfg.Rental.HoldWindow)
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
	if cfg.Scheduler.HoldExpirySpec == "" {
		t.Error("expected default hold expiry schedule")
	}
}

func TestValidateAPIKeys(t *testing.T) {
	tests := []struct {
		name    string
		keys    []APIClientKey
		wantErr bool
	}{
		{
			name: "Valid keys",
			keys: []APIClientKey{
				{Key: "a", Name: "web", Role: models.RoleCustomer},
				{Key: "b", Name: "desk", Role: models.RoleStaff, UserID: 3},
			},
			wantErr: false,
		},
		{
			name: "Duplicate key",
			keys: []APIClientKey{
				{Key: "a", Name: "web", Role: models.RoleCustomer},
				{Key: "a", Name: "web2", Role: models.RoleCustomer},
			},
			wantErr: true,
		},
		{
			name:    "Staff without user",
			keys:    []APIClientKey{{Key: "a", Name: "desk", Role: models.RoleStaff}},
			wantErr: true,
		},
		{
			name:    "Unknown role",
			keys:    []APIClientKey{{Key: "a", Name: "x", Role: "root"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKeys(tt.keys)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKeys() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
