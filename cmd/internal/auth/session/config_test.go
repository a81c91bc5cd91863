package session

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("LIBRA_SESSION_IDLE_TIMEOUT", "")
	t.Setenv("LIBRA_SESSION_SWEEP_INTERVAL", "")
	t.Setenv("LIBRA_SESSION_AUDIT_TIMEOUT", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IdleTimeout != 30*time.Minute {
		t.Fatalf("idle timeout mismatch: %v", cfg.IdleTimeout)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	cases := map[string]string{
		"LIBRA_SESSION_IDLE_TIMEOUT":   "-5m",
		"LIBRA_SESSION_SWEEP_INTERVAL": "soon",
		"LIBRA_SESSION_AUDIT_TIMEOUT":  "0s",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := LoadConfigFromEnv(); err != ErrConfig {
				t.Fatalf("expected ErrConfig for %s=%s, got %v", k, v, err)
			}
		})
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("LIBRA_SESSION_IDLE_TIMEOUT", "45m")
	t.Setenv("LIBRA_SESSION_SWEEP_INTERVAL", "0")
	t.Setenv("LIBRA_SESSION_AUDIT_TIMEOUT", "500ms")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IdleTimeout != 45*time.Minute {
		t.Fatalf("idle timeout mismatch: %v", cfg.IdleTimeout)
	}
	if cfg.SweepInterval != 0 {
		t.Fatalf("sweep interval mismatch: %v", cfg.SweepInterval)
	}
	if cfg.AuditTimeout != 500*time.Millisecond {
		t.Fatalf("audit timeout mismatch: %v", cfg.AuditTimeout)
	}
}
