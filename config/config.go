// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
)

// Environment name constants used in ENVIRONMENT config field.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP
	Port               int    `conf:"default:8080,env:PORT"`
	CORSAllowedOrigins string `conf:"default:*,env:CORS_ALLOWED_ORIGINS"`
	RateLimitPerMinute int    `conf:"default:600,env:RATE_LIMIT_PER_MINUTE"`

	// Database; ":memory:" for a throwaway database
	DatabasePath string `conf:"default:partsledger.db,env:DATABASE_PATH"`

	// Redis; empty keeps part locks in-process
	RedisURL    string        `conf:"env:REDIS_URL,noprint"`
	LockTTL     time.Duration `conf:"default:15s,env:LOCK_TTL"`
	LockBackoff time.Duration `conf:"default:25ms,env:LOCK_BACKOFF"`

	// Inventory
	DefaultMinStock   int64         `conf:"default:0,env:DEFAULT_MIN_STOCK"`
	ReconcileInterval time.Duration `conf:"default:1h,env:RECONCILE_INTERVAL"`

	// Application
	LogLevel    string `conf:"default:info,env:LOG_LEVEL"`
	Environment string `conf:"default:development,enum:development|testing|production,env:ENVIRONMENT"`
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	var cfg Config
	_ = godotenv.Load()
	if _, err := conf.Parse("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }

// ValidateForProduction enforces safety requirements when ENVIRONMENT=production.
// No-ops for non-production environments.
func ValidateForProduction(cfg *Config) error {
	if !cfg.IsProduction() {
		return nil
	}

	var errs []string

	if cfg.DatabasePath == ":memory:" {
		errs = append(errs, "DATABASE_PATH must not be ':memory:' in production (the ledger would be lost on restart)")
	}

	if cfg.LogLevel == "debug" {
		errs = append(errs, "LOG_LEVEL must not be 'debug' in production (may leak sensitive data)")
	}

	if cfg.CORSAllowedOrigins == "*" {
		errs = append(errs, "CORS_ALLOWED_ORIGINS must list explicit origins in production")
	}

	if cfg.RateLimitPerMinute <= 0 {
		errs = append(errs, fmt.Sprintf("RATE_LIMIT_PER_MINUTE must be positive (got %d)", cfg.RateLimitPerMinute))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("production config validation failed: %s", strings.Join(errs, "; "))
}
