// Package config provides configuration loading for the storefront API.
// Configuration sources (in priority order): env vars > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcus-qen/storefront/internal/storefront/database"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds all storefront configuration.
type Config struct {
	// Listen address (default ":8080")
	ListenAddr string `yaml:"listen_addr"`
	// Environment controls stack traces in error bodies and logger flavour.
	Environment string `yaml:"environment"`
	// Log level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	CSRF     CSRFConfig     `yaml:"csrf"`

	// RateLimits overrides the built-in limits per endpoint class
	// (general, auth, otp, password_reset, registration, upload).
	RateLimits map[string]RateLimitOverride `yaml:"rate_limits,omitempty"`
	// TrustProxy makes the rate limiter key on the first X-Forwarded-For hop.
	TrustProxy bool `yaml:"trust_proxy"`

	Tracing   TracingConfig   `yaml:"tracing,omitempty"`
	Bootstrap BootstrapConfig `yaml:"bootstrap,omitempty"`
}

// DatabaseConfig selects the SQL driver and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres, mysql
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures the token issuer.
type AuthConfig struct {
	TokenSecret   string        `yaml:"token_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AdminTokenTTL time.Duration `yaml:"admin_token_ttl"`
}

// CSRFConfig configures the CSRF token guard.
type CSRFConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// RateLimitOverride replaces fields of a built-in rate limit rule. Zero
// values keep the default.
type RateLimitOverride struct {
	Window     time.Duration `yaml:"window,omitempty"`
	Max        int           `yaml:"max,omitempty"`
	FailedOnly *bool         `yaml:"failed_only,omitempty"`
}

// TracingConfig configures OTLP trace export. Empty endpoint disables it.
type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// BootstrapConfig optionally seeds a super admin account at startup.
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email,omitempty"`
	AdminPassword string `yaml:"admin_password,omitempty"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		Environment: EnvDevelopment,
		LogLevel:    "info",
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "storefront.db",
		},
		Auth: AuthConfig{
			TokenTTL:      7 * 24 * time.Hour,
			AdminTokenTTL: 24 * time.Hour,
		},
		CSRF: CSRFConfig{
			TTL:           15 * time.Minute,
			SweepSchedule: "@every 5m",
		},
	}
}

// Load reads configuration from a YAML file, then overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("STOREFRONT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STOREFRONT_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STOREFRONT_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("STOREFRONT_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("STOREFRONT_TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := os.Getenv("STOREFRONT_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse STOREFRONT_TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}
	if v := os.Getenv("STOREFRONT_ADMIN_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse STOREFRONT_ADMIN_TOKEN_TTL: %w", err)
		}
		cfg.Auth.AdminTokenTTL = d
	}
	if v := os.Getenv("STOREFRONT_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parse STOREFRONT_TRUST_PROXY: %w", err)
		}
		cfg.TrustProxy = b
	}
	if v := os.Getenv("STOREFRONT_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("STOREFRONT_ADMIN_EMAIL"); v != "" {
		cfg.Bootstrap.AdminEmail = v
	}
	if v := os.Getenv("STOREFRONT_ADMIN_PASSWORD"); v != "" {
		cfg.Bootstrap.AdminPassword = v
	}

	return cfg, nil
}

// Validate reports configuration that cannot start a server.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.TokenSecret) == "" {
		errs = append(errs, errors.New("auth.token_secret is required"))
	}
	if _, err := database.ParseDialect(c.Database.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.AdminTokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.CSRF.TTL <= 0 {
		errs = append(errs, errors.New("csrf.ttl must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
