package api

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	def := DefaultConfig()

	if cfg.LoginBurst != def.LoginBurst || cfg.LoginRate != def.LoginRate {
		t.Fatalf("unexpected login limiter defaults: %+v", cfg)
	}
	if cfg.MaxBodyBytes != def.MaxBodyBytes {
		t.Fatalf("expected max body %d, got %d", def.MaxBodyBytes, cfg.MaxBodyBytes)
	}
	if len(cfg.WSAllowedOrigins) != 2 {
		t.Fatalf("expected default origins, got %v", cfg.WSAllowedOrigins)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("LIBRA_AUTH_TRUST_PROXY", "true")
	t.Setenv("LIBRA_AUTH_LOGIN_RATE", "2.5")
	t.Setenv("LIBRA_AUTH_LOGIN_BURST", "3")
	t.Setenv("LIBRA_AUTH_WS_READ_IDLE", "45s")
	t.Setenv("LIBRA_AUTH_WS_ALLOWED_ORIGINS", " app.example.com , ,admin.example.com")

	cfg := LoadConfigFromEnv()

	if !cfg.TrustProxy {
		t.Fatalf("expected trust proxy")
	}
	if cfg.LoginRate != 2.5 || cfg.LoginBurst != 3 {
		t.Fatalf("unexpected limiter config: rate=%v burst=%d", cfg.LoginRate, cfg.LoginBurst)
	}
	if cfg.WSReadIdle != 45*time.Second {
		t.Fatalf("expected 45s read idle, got %v", cfg.WSReadIdle)
	}
	if len(cfg.WSAllowedOrigins) != 2 || cfg.WSAllowedOrigins[1] != "admin.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.WSAllowedOrigins)
	}
}

func TestLoadConfigFromEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("LIBRA_AUTH_LOGIN_BURST", "-4")
	t.Setenv("LIBRA_AUTH_LOGIN_RATE", "fast")
	t.Setenv("LIBRA_AUTH_WS_PING_INTERVAL", "soon")

	cfg := LoadConfigFromEnv()
	def := DefaultConfig()

	if cfg.LoginBurst != def.LoginBurst {
		t.Fatalf("expected default burst, got %d", cfg.LoginBurst)
	}
	if cfg.LoginRate != def.LoginRate {
		t.Fatalf("expected default rate, got %v", cfg.LoginRate)
	}
	if cfg.WSPingInterval != def.WSPingInterval {
		t.Fatalf("expected default ping interval, got %v", cfg.WSPingInterval)
	}
}
