package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("API_BASE_URL", "https://sehetyar.example.com")
	defer os.Unsetenv("API_BASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "https://sehetyar.example.com" {
		t.Errorf("expected API_BASE_URL to be set, got %s", cfg.APIBaseURL)
	}
	if cfg.Port != "4590" {
		t.Errorf("expected default port 4590, got %s", cfg.Port)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("expected default data dir ./data, got %s", cfg.DataDir)
	}
	if cfg.HTTPTimeout() != 15*time.Second {
		t.Errorf("expected default timeout 15s, got %v", cfg.HTTPTimeout())
	}
	if cfg.PollInterval() != 30*time.Second {
		t.Errorf("expected default poll interval 30s, got %v", cfg.PollInterval())
	}
	if cfg.WarmDelay() != 2*time.Second {
		t.Errorf("expected default warm delay 2s, got %v", cfg.WarmDelay())
	}
	if cfg.WarmRouteList() != nil {
		t.Errorf("expected empty warm routes, got %v", cfg.WarmRouteList())
	}
}

func TestValidate_RequiresBaseURL(t *testing.T) {
	cfg := &Config{HTTPTimeoutSeconds: 15, PollIntervalSeconds: 30}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when API_BASE_URL is missing")
	}

	cfg.APIBaseURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative API_BASE_URL")
	}

	cfg.APIBaseURL = "http://localhost:3000"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Intervals(t *testing.T) {
	cfg := &Config{APIBaseURL: "http://localhost:3000", HTTPTimeoutSeconds: 15, PollIntervalSeconds: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero poll interval")
	}

	cfg.PollIntervalSeconds = 30
	cfg.WarmDelaySeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative warm delay")
	}
}

func TestConfig_WarmRouteList(t *testing.T) {
	cfg := &Config{WarmRoutes: "/dashboard, /dashboard/patients ,"}
	routes := cfg.WarmRouteList()
	if len(routes) != 2 || routes[0] != "/dashboard" || routes[1] != "/dashboard/patients" {
		t.Fatalf("unexpected routes: %v", routes)
	}

	cfg = &Config{APIBaseURL: "http://localhost:3000", HTTPTimeoutSeconds: 15, PollIntervalSeconds: 30,
		WarmRoutes: "dashboard"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative warm route")
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}
