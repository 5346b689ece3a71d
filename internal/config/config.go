// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the configuration for the trip cache server.
type Config struct {
	TripsDBPath string `validate:"required"` // path to the SQLite trip cache file
	ListenAddr  string `validate:"required"` // HTTP listen address (default ":8080")
	LogLevel    string `validate:"oneof=debug info warn warning error"`
	Env         string `validate:"oneof=development production"`

	// Upstream journey planner.
	ProviderURL     string        `validate:"required,url"`
	ProviderTimeout time.Duration `validate:"min=1s"`
	NetworkID       string        `validate:"required"` // transit network the cache serves (e.g. "DB")

	// Expiry janitor.
	TripRetention   time.Duration `validate:"min=1h"` // how long cached trips outlive their arrival
	JanitorInterval time.Duration `validate:"min=1m"`

	ReadPoolSize int `validate:"min=1"` // read-side SQLite connections

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables and applies
// defaults. Validation failures and insecure production settings are
// fatal.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		TripsDBPath: os.Getenv("TRIPS_DB_PATH"),
		ListenAddr:  os.Getenv("LISTEN_ADDR"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Env:         os.Getenv("ENV"),
		ProviderURL: os.Getenv("PROVIDER_URL"),
		NetworkID:   os.Getenv("NETWORK_ID"),
	}

	var err error
	if cfg.ProviderTimeout, err = parseDurationEnv("PROVIDER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.TripRetention, err = parseDurationEnv("TRIP_RETENTION", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.JanitorInterval, err = parseDurationEnv("JANITOR_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}

	cfg.ReadPoolSize = 4
	if v := os.Getenv("READ_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("READ_POOL_SIZE: %w", err)
		}
		cfg.ReadPoolSize = n
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.TripsDBPath == "" {
		cfg.TripsDBPath = "trips.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
		cfg.Warnings = append(cfg.Warnings, "CORS_ALLOWED_ORIGINS not set, allowing all origins")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
