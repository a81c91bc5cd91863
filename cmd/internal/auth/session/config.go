package session

import (
	"os"
	"time"
)

// Config defines runtime configuration for the session registry.
type Config struct {
	// IdleTimeout is the sliding expiry window measured from last access.
	IdleTimeout time.Duration

	// SweepInterval is how often Run reclaims idle entries. Zero disables
	// the background sweep; Get and Create still enforce expiry.
	SweepInterval time.Duration

	// AuditTimeout bounds a single audit delivery.
	AuditTimeout time.Duration
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   30 * time.Minute,
		SweepInterval: 5 * time.Minute,
		AuditTimeout:  2 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - LIBRA_SESSION_IDLE_TIMEOUT
//   - LIBRA_SESSION_SWEEP_INTERVAL ("0" disables the background sweep)
//   - LIBRA_SESSION_AUDIT_TIMEOUT
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LIBRA_SESSION_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.IdleTimeout = d
	}

	if v := os.Getenv("LIBRA_SESSION_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.SweepInterval = d
	}

	if v := os.Getenv("LIBRA_SESSION_AUDIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AuditTimeout = d
	}

	return cfg, nil
}
