package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	AuthToken  string `mapstructure:"AUTH_TOKEN"`
	DataDir    string `mapstructure:"DATA_DIR"`

	HTTPTimeoutSeconds  int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	PollIntervalSeconds int    `mapstructure:"POLL_INTERVAL_SECONDS"`
	WarmDelaySeconds    int    `mapstructure:"WARM_DELAY_SECONDS"`
	WarmRoutes          string `mapstructure:"WARM_ROUTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "4590")
	v.SetDefault("ENV", "development")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 15)
	v.SetDefault("POLL_INTERVAL_SECONDS", 30)
	v.SetDefault("WARM_DELAY_SECONDS", 2)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("API_BASE_URL")
	v.BindEnv("AUTH_TOKEN")
	v.BindEnv("DATA_DIR")
	v.BindEnv("HTTP_TIMEOUT_SECONDS")
	v.BindEnv("POLL_INTERVAL_SECONDS")
	v.BindEnv("WARM_DELAY_SECONDS")
	v.BindEnv("WARM_ROUTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HTTPTimeout is the per-request timeout for upstream calls.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// PollInterval is how often connectivity is probed while offline.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// WarmDelay is the wait before the startup cache warming pass.
func (c *Config) WarmDelay() time.Duration {
	return time.Duration(c.WarmDelaySeconds) * time.Second
}

// WarmRouteList splits WARM_ROUTES into a slice. Empty means the built-in
// dashboard route set.
func (c *Config) WarmRouteList() []string {
	if strings.TrimSpace(c.WarmRoutes) == "" {
		return nil
	}
	parts := strings.Split(c.WarmRoutes, ",")
	routes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			routes = append(routes, p)
		}
	}
	return routes
}

// Validate checks that the configuration is safe to run. The agent refuses to
// start without an upstream base URL since every sync path depends on it.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTPTimeoutSeconds)
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.WarmDelaySeconds < 0 {
		return fmt.Errorf("WARM_DELAY_SECONDS must not be negative, got %d", c.WarmDelaySeconds)
	}
	for _, r := range c.WarmRouteList() {
		if !strings.HasPrefix(r, "/") {
			return fmt.Errorf("WARM_ROUTES entries must be absolute paths, got %q", r)
		}
	}
	return nil
}
