// Package config resolves how the CLI reaches its store and how it logs.
// Values come from LIBRARY_* environment variables; command-line flags
// override them.
package config

import (
	"fmt"
	"os"
	"strings"

	"library-catalog/library"
)

const (
	EnvDriver    = "LIBRARY_DB_DRIVER"
	EnvDSN       = "LIBRARY_DB_DSN"
	EnvLogLevel  = "LIBRARY_LOG_LEVEL"
	EnvLogFormat = "LIBRARY_LOG_FORMAT"

	DefaultDSN = "library.db"
)

type Config struct {
	Driver    string
	DSN       string
	LogLevel  string
	LogFormat string
}

// FromEnv returns the defaults overlaid with whatever is set in the environment.
func FromEnv() Config {
	return Config{
		Driver:    envOr(EnvDriver, library.DriverSQLite),
		DSN:       envOr(EnvDSN, DefaultDSN),
		LogLevel:  envOr(EnvLogLevel, "warn"),
		LogFormat: envOr(EnvLogFormat, "console"),
	}
}

// Validate normalises driver aliases and rejects incomplete settings.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "sqlite", "sqlite3":
		c.Driver = library.DriverSQLite
	case "postgres", "postgresql", "pgx":
		c.Driver = library.DriverPostgres
	default:
		return fmt.Errorf("unsupported database driver %q (want sqlite3 or postgres)", c.Driver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("database dsn is required (set --dsn or %s)", EnvDSN)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log format %q (want console or json)", c.LogFormat)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
