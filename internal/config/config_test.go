package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "LOG_FORMAT", "DB_DRIVER", "DB_PATH", "DB_DSN",
		"BCRYPT_COST", "SHUTDOWN_GRACE_PERIOD",
		"SIGNIN_RATE_REQUESTS", "SIGNIN_RATE_WINDOW", "SIGNIN_RATE_BURST",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "data/users.db", cfg.DBPath)
	assert.Empty(t, cfg.DBDSN)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, 5, cfg.SignInRateRequests)
	assert.Equal(t, time.Minute, cfg.SignInRateWindow)
	assert.Equal(t, 5, cfg.SignInRateBurst)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://u:p@db/users")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("SHUTDOWN_GRACE_PERIOD", "5s")
	t.Setenv("SIGNIN_RATE_WINDOW", "90")
	t.Setenv("LOG_FORMAT", "json")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "postgres://u:p@db/users", cfg.DBDSN)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, 90*time.Second, cfg.SignInRateWindow, "bare integers are seconds")
	assert.Equal(t, "json", cfg.LogFormat)
	require.NoError(t, cfg.Validate())
}

func TestLoad_UnparsableFallsBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("SHUTDOWN_GRACE_PERIOD", "soon")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGracePeriod)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:                8080,
			DBDriver:            DriverSQLite,
			DBPath:              "users.db",
			ShutdownGracePeriod: time.Second,
			SignInRateRequests:  5,
			SignInRateWindow:    time.Minute,
			SignInRateBurst:     5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid sqlite", func(*Config) {}, ""},
		{"valid mysql", func(c *Config) { c.DBDriver = DriverMySQL; c.DBDSN = "u:p@tcp(db)/users" }, ""},
		{"unknown driver", func(c *Config) { c.DBDriver = "oracle" }, "DB_DRIVER"},
		{"mysql without dsn", func(c *Config) { c.DBDriver = DriverMySQL }, "DB_DSN is required for the mysql driver"},
		{"postgres without dsn", func(c *Config) { c.DBDriver = DriverPostgres }, "DB_DSN is required for the postgres driver"},
		{"sqlite without path", func(c *Config) { c.DBPath = "" }, "DB_PATH"},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "PORT"},
		{"zero rate", func(c *Config) { c.SignInRateRequests = 0 }, "SIGNIN_RATE"},
		{"zero grace", func(c *Config) { c.ShutdownGracePeriod = 0 }, "SHUTDOWN_GRACE_PERIOD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Config{Port: 0, DBDriver: "nope"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "SHUTDOWN_GRACE_PERIOD")
}
