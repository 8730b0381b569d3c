package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures environment driven configuration values for the gatherly service.
type Config struct {
	HTTPPort          int           `env:"GATHERLY_HTTP_PORT" envDefault:"8080"`
	DBDriver          string        `env:"GATHERLY_DB_DRIVER" envDefault:"sqlite"`
	SQLitePath        string        `env:"GATHERLY_SQLITE_PATH" envDefault:"gatherly.db"`
	SQLiteBusyTimeout time.Duration `env:"GATHERLY_SQLITE_BUSY_TIMEOUT" envDefault:"5s"`
	PostgresDSN       string        `env:"GATHERLY_POSTGRES_DSN"`
	ConflictCacheTTL  time.Duration `env:"GATHERLY_CONFLICT_CACHE_TTL" envDefault:"30s"`
	ConflictCacheSize int           `env:"GATHERLY_CONFLICT_CACHE_SIZE" envDefault:"256"`
	OTelEndpoint      string        `env:"GATHERLY_OTEL_ENDPOINT"`
	LogLevel          string        `env:"GATHERLY_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration values from the current process environment.
//
// Values that fail to parse are reported by env; values that parse but fall
// outside their allowed range are collected and reported together, missing
// entries first.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = append(invalid, "GATHERLY_HTTP_PORT")
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch cfg.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			missing = append(missing, "GATHERLY_SQLITE_PATH")
		}
		if cfg.SQLiteBusyTimeout <= 0 {
			invalid = append(invalid, "GATHERLY_SQLITE_BUSY_TIMEOUT")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			missing = append(missing, "GATHERLY_POSTGRES_DSN")
		}
	default:
		invalid = append(invalid, "GATHERLY_DB_DRIVER")
	}

	if cfg.ConflictCacheTTL <= 0 {
		invalid = append(invalid, "GATHERLY_CONFLICT_CACHE_TTL")
	}
	if cfg.ConflictCacheSize <= 0 {
		invalid = append(invalid, "GATHERLY_CONFLICT_CACHE_SIZE")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
