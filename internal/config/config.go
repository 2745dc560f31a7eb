// Package config assembles the bot configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	pkgconfig "seriesbell/internal/pkg/config"
)

// MissingConfigError reports a required key that is unset or empty.
type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("missing required configuration %s", e.Key)
}

// Config holds every setting the bot reads at startup.
type Config struct {
	// Required
	DatabaseURL  string // sqlite DSN, e.g. file:data/bot.db
	DatabasePath string // on-disk database file
	DiscordToken string
	AdminID      string // Discord user id of the operator
	LogsPath     string // directory of the daily log files

	// Optional
	PollInterval      time.Duration // POLL_INTERVAL in seconds; 60
	WebhookURL        string        // extra delivery target; disabled when empty
	LogLevel          string        // info
	MetricsPort       int           // 9090
	HealthPort        int           // 9091
	BusMaxConcurrent  int           // 10
	HTTPTimeout       time.Duration // 10s
	HeartbeatSchedule string        // @every 10s
	TracingEnabled    bool          // true
}

// DefaultConfig returns the optional settings at their defaults. Required
// fields are left empty.
func DefaultConfig() Config {
	return Config{
		PollInterval:      60 * time.Second,
		LogLevel:          "info",
		MetricsPort:       9090,
		HealthPort:        9091,
		BusMaxConcurrent:  10,
		HTTPTimeout:       10 * time.Second,
		HeartbeatSchedule: "@every 10s",
		TracingEnabled:    true,
	}
}

var requiredKeys = []string{"DATABASE_URL", "DATABASE_PATH", "DISCORD_TOKEN", "ADMIN_ID", "LOGS_PATH"}

// LoadDotEnv loads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			logger.Warn(".env exists but could not be loaded", slog.Any("error", err))
		}
	}
}

// Load reads the configuration. A missing required key is a
// *MissingConfigError. An invalid optional value falls back to its default
// with a warning and a fallback metric; it never fails the load.
func Load(logger *slog.Logger, metrics *pkgconfig.ConfigMetrics) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()

	var missing []error
	required := make(map[string]string, len(requiredKeys))
	for _, key := range requiredKeys {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, &MissingConfigError{Key: key})
			continue
		}
		required[key] = v
	}
	if len(missing) > 0 {
		return Config{}, errors.Join(missing...)
	}
	cfg.DatabaseURL = required["DATABASE_URL"]
	cfg.DatabasePath = required["DATABASE_PATH"]
	cfg.DiscordToken = required["DISCORD_TOKEN"]
	cfg.AdminID = required["ADMIN_ID"]
	cfg.LogsPath = required["LOGS_PATH"]

	cfg.WebhookURL = pkgconfig.LoadEnvString("WEBHOOK_URL", "")
	cfg.LogLevel = pkgconfig.LoadEnvString("LOG_LEVEL", cfg.LogLevel)

	fallbacks := 0
	apply := func(field string, r pkgconfig.ConfigLoadResult) pkgconfig.ConfigLoadResult {
		if r.FallbackApplied {
			fallbacks++
			for _, w := range r.Warnings {
				logger.Warn("configuration fallback applied", slog.String("field", field), slog.String("warning", w))
			}
			if metrics != nil {
				metrics.RecordValidationError(field)
				metrics.RecordFallback(field)
			}
		}
		return r
	}

	seconds := apply("poll_interval", pkgconfig.LoadEnvInt("POLL_INTERVAL", int(cfg.PollInterval/time.Second),
		func(v int) error { return pkgconfig.ValidateIntRange(v, 1, 86400) }))
	cfg.PollInterval = time.Duration(seconds.Value.(int)) * time.Second

	port := func(v int) error { return pkgconfig.ValidateIntRange(v, 1024, 65535) }
	cfg.MetricsPort = apply("metrics_port", pkgconfig.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, port)).Value.(int)
	cfg.HealthPort = apply("health_port", pkgconfig.LoadEnvInt("HEALTH_PORT", cfg.HealthPort, port)).Value.(int)

	cfg.BusMaxConcurrent = apply("bus_max_concurrent", pkgconfig.LoadEnvInt("BUS_MAX_CONCURRENT", cfg.BusMaxConcurrent,
		func(v int) error { return pkgconfig.ValidateIntRange(v, 1, 100) })).Value.(int)

	cfg.HTTPTimeout = apply("http_timeout", pkgconfig.LoadEnvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout,
		func(d time.Duration) error { return pkgconfig.ValidateDuration(d, time.Second, 2*time.Minute) })).Value.(time.Duration)

	cfg.HeartbeatSchedule = apply("heartbeat_schedule", pkgconfig.LoadEnvWithFallback("HEARTBEAT_SCHEDULE", cfg.HeartbeatSchedule,
		pkgconfig.ValidateCronSchedule)).Value.(string)

	cfg.TracingEnabled = apply("tracing_enabled", pkgconfig.LoadEnvBool("TRACING_ENABLED", cfg.TracingEnabled)).Value.(bool)

	if metrics != nil {
		metrics.RecordLoadTimestamp()
		metrics.SetFallbackActive(fallbacks > 0)
	}
	return cfg, nil
}

// Validate checks the settings of an already loaded or hand-built config.
func (c *Config) Validate() error {
	var errs []error
	for key, v := range map[string]string{
		"DATABASE_URL":  c.DatabaseURL,
		"DATABASE_PATH": c.DatabasePath,
		"DISCORD_TOKEN": c.DiscordToken,
		"ADMIN_ID":      c.AdminID,
		"LOGS_PATH":     c.LogsPath,
	} {
		if v == "" {
			errs = append(errs, &MissingConfigError{Key: key})
		}
	}
	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("poll interval %v is below 1s", c.PollInterval))
	}
	if err := pkgconfig.ValidateIntRange(c.BusMaxConcurrent, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("bus max concurrent: %w", err))
	}
	if err := pkgconfig.ValidatePositiveDuration(c.HTTPTimeout); err != nil {
		errs = append(errs, fmt.Errorf("http timeout: %w", err))
	}
	if err := pkgconfig.ValidateCronSchedule(c.HeartbeatSchedule); err != nil {
		errs = append(errs, fmt.Errorf("heartbeat schedule: %w", err))
	}
	return errors.Join(errs...)
}
