package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds process configuration for the scheduler binary
// (cmd/scheduler). There is no dashboard here, so no JWT/email/auth
// fields — just what the queue engine itself needs to run.
type Config struct {
	Env string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// WorkerCount independent worker loops share the store; each is a
	// single-threaded claim/dispatch/ack loop (see internal/scheduler).
	WorkerCount int `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`

	// PollIntervalSec is how long a worker sleeps after an empty claim.
	PollIntervalSec int `env:"POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`

	// TickIntervalSec bounds how often a worker re-runs the scheduler tick
	// (promote due delayed jobs, spawn due recurring instances).
	TickIntervalSec int `env:"TICK_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`

	// StaleAfterSec is the default age after which a processing row is
	// considered abandoned and returned to pending by the reaper.
	StaleAfterSec int `env:"STALE_AFTER_SEC" envDefault:"300" validate:"min=1"`

	// CleanupAfterHours is the default retention window before terminal
	// rows become eligible for deletion.
	CleanupAfterHours int `env:"CLEANUP_AFTER_HOURS" envDefault:"24" validate:"min=1"`

	// ReaperIntervalSec controls how often ResetStale/Cleanup run in the
	// background reaper loop.
	ReaperIntervalSec int `env:"REAPER_INTERVAL_SEC" envDefault:"30" validate:"min=1,max=3600"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	DefaultQueue string `env:"DEFAULT_QUEUE" envDefault:"default" validate:"required"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
