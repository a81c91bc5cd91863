package app

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr: %q", cfg.HTTPAddr)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected memory mode by default")
	}
	if cfg.DBSchema != "libra" {
		t.Fatalf("unexpected schema: %q", cfg.DBSchema)
	}
	if !cfg.RequireArgon2id {
		t.Fatalf("argon2id policy should default on")
	}
	if cfg.DBConnectRetries != 5 {
		t.Fatalf("unexpected connect retries: %d", cfg.DBConnectRetries)
	}
	if len(cfg.AuditKafkaBrokers) != 0 || cfg.AuditKafkaTopic != "libra.audit" {
		t.Fatalf("unexpected kafka defaults: %v %q", cfg.AuditKafkaBrokers, cfg.AuditKafkaTopic)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout: %v", cfg.ShutdownTimeout)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("LIBRA_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("LIBRA_DB_MAX_CONNS", "-3")
	t.Setenv("LIBRA_HTTP_READ_TIMEOUT", "nope")
	t.Setenv("LIBRA_CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("LIBRA_BOOTSTRAP_ADMIN_MUST_CHANGE", "false")
	t.Setenv("LIBRA_AUDIT_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("unexpected addr: %q", cfg.HTTPAddr)
	}
	if cfg.DBMaxConns != 10 {
		t.Fatalf("negative max conns should fall back, got %d", cfg.DBMaxConns)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Fatalf("invalid duration should fall back, got %v", cfg.ReadTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if len(cfg.AuditKafkaBrokers) != 2 || cfg.AuditKafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected kafka brokers: %v", cfg.AuditKafkaBrokers)
	}
	if cfg.BootstrapAdminMustChange {
		t.Fatalf("expected must-change override")
	}
}
