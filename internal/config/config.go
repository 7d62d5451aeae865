// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsPort int    `envconfig:"METRICS_PORT" default:"9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowCookies   bool     `envconfig:"CORS_ALLOW_COOKIES" default:"false"`

	// Storage
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Credential vault
	VaultSecret string `envconfig:"VAULT_SECRET"`

	// Bulk assignment pacing, courier calls per second
	BulkRateLimit float64 `envconfig:"BULK_RATE_LIMIT" default:"5"`

	// Provider base URL overrides, mainly for staging endpoints
	YalidineBaseURL  string `envconfig:"YALIDINE_BASE_URL"`
	GuepexBaseURL    string `envconfig:"GUEPEX_BASE_URL"`
	EcotrackBaseURL  string `envconfig:"ECOTRACK_BASE_URL"`
	NoestBaseURL     string `envconfig:"NOEST_BASE_URL"`
	ZRExpressBaseURL string `envconfig:"ZREXPRESS_BASE_URL"`
	ZRExpressLegacy  bool   `envconfig:"ZREXPRESS_LEGACY" default:"false"`
	MaystroBaseURL   string `envconfig:"MAYSTRO_BASE_URL"`
	ZimouBaseURL     string `envconfig:"ZIMOU_BASE_URL"`
	DefaultCommune   string `envconfig:"DEFAULT_COMMUNE"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"dzexpress-shipping"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from a .env file when present, then the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// IsProduction reports whether the service runs with production rules.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate enforces startup invariants. Violations abort startup rather
// than degrade silently.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if len(c.VaultSecret) < 16 {
			return fmt.Errorf("VAULT_SECRET must be set to at least 16 characters in production")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set in production")
		}
	}
	if c.CORSAllowCookies {
		for _, origin := range c.CORSAllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ALLOWED_ORIGINS must not contain a wildcard when CORS_ALLOW_COOKIES is enabled")
			}
		}
	}
	if c.BulkRateLimit <= 0 {
		return fmt.Errorf("BULK_RATE_LIMIT must be positive")
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("deployment.environment", c.Environment),
	}
}
