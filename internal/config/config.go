// Package config loads the server configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers accepted in DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	Port      int    // HTTP port (PORT, default 8080)
	Env       string // dev, staging, prod (ENV, default dev)
	Version   string // build version, set by main
	LogLevel  string // debug, info, warn, error (LOG_LEVEL, default info)
	LogFormat string // text, json (LOG_FORMAT, default text)

	DBDriver string // sqlite, mysql, postgres (DB_DRIVER, default sqlite)
	DBPath   string // SQLite file (DB_PATH, default data/users.db)
	DBDSN    string // MySQL/PostgreSQL DSN (DB_DSN)

	BcryptCost          int           // BCRYPT_COST, default 10
	ShutdownGracePeriod time.Duration // SHUTDOWN_GRACE_PERIOD, default 30s

	SignInRateRequests int           // SIGNIN_RATE_REQUESTS, default 5
	SignInRateWindow   time.Duration // SIGNIN_RATE_WINDOW, default 1m
	SignInRateBurst    int           // SIGNIN_RATE_BURST, default 5
}

// Load reads the configuration from the environment. Unset or unparsable
// values fall back to their defaults; Validate catches the rest.
func Load() Config {
	return Config{
		Port:      getEnvIntOrDefault("PORT", 8080),
		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		DBDriver: getEnvOrDefault("DB_DRIVER", DriverSQLite),
		DBPath:   getEnvOrDefault("DB_PATH", "data/users.db"),
		DBDSN:    os.Getenv("DB_DSN"),

		BcryptCost:          getEnvIntOrDefault("BCRYPT_COST", 10),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 30*time.Second),

		SignInRateRequests: getEnvIntOrDefault("SIGNIN_RATE_REQUESTS", 5),
		SignInRateWindow:   getEnvDurationOrDefault("SIGNIN_RATE_WINDOW", time.Minute),
		SignInRateBurst:    getEnvIntOrDefault("SIGNIN_RATE_BURST", 5),
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverMySQL, DriverPostgres:
		if c.DBDSN == "" {
			errs = append(errs, fmt.Errorf("DB_DSN is required for the %s driver", c.DBDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be one of sqlite, mysql, postgres, got %q", c.DBDriver))
	}

	if c.SignInRateRequests < 1 || c.SignInRateBurst < 1 || c.SignInRateWindow <= 0 {
		errs = append(errs, errors.New("SIGNIN_RATE_REQUESTS, SIGNIN_RATE_BURST and SIGNIN_RATE_WINDOW must be positive"))
	}
	if c.ShutdownGracePeriod <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_GRACE_PERIOD must be positive"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s", "5m") or a bare
// integer number of seconds.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
