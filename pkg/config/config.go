package config

import (
	"fmt"
	"net/url"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the statement view service.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values.
// Secrets (the dashboard auth token, the session key) must only come
// from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3380"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Dashboard API configuration
	Dashboard DashboardConfig `yaml:"dashboard"`

	// PersistQueryOptions selects the query-option store backing: when
	// true, the filter selection survives controller reconstruction via
	// the shared session storage; when false it is call-scoped.
	PersistQueryOptions bool `yaml:"persist_query_options" env:"PERSIST_QUERY_OPTIONS" env-default:"true"`

	// SessionKey signs the per-browser display-preference cookie.
	// Server will fail to start if this is not set.
	SessionKey string `yaml:"-" env:"SESSION_KEY"` // Secret - not in YAML
}

// DashboardConfig holds the remote dashboard API endpoint settings.
type DashboardConfig struct {
	// Endpoint is the dashboard API base URL, e.g.
	// http://127.0.0.1:12333/dashboard/api
	Endpoint string `yaml:"endpoint" env:"DASHBOARD_ENDPOINT" env-default:"http://127.0.0.1:12333/dashboard/api"`
	// AuthToken is an opaque bearer token forwarded on every call.
	AuthToken string `yaml:"-" env:"DASHBOARD_AUTH_TOKEN"` // Secret - not in YAML
	// TimeoutSeconds bounds each remote call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"DASHBOARD_TIMEOUT_SECONDS" env-default:"30"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on
// the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate checks fields that cleanenv defaults cannot guarantee.
func (c *Config) validate() error {
	if c.Dashboard.Endpoint == "" {
		return fmt.Errorf("dashboard endpoint must be set")
	}
	u, err := url.Parse(c.Dashboard.Endpoint)
	if err != nil {
		return fmt.Errorf("dashboard endpoint is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("dashboard endpoint must be http or https, got %q", u.Scheme)
	}
	if c.Dashboard.TimeoutSeconds <= 0 {
		return fmt.Errorf("dashboard timeout must be positive, got %d", c.Dashboard.TimeoutSeconds)
	}
	if c.SessionKey == "" {
		return fmt.Errorf("SESSION_KEY must be set")
	}
	return nil
}
