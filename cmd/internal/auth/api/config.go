package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Per-IP login token bucket: LoginRate attempts per second, LoginBurst at once.
	LoginRate  float64
	LoginBurst int
	// LoginLimiterTTL drops idle per-IP buckets.
	LoginLimiterTTL time.Duration

	// AuditTimeout bounds synchronous audit writes made by handlers.
	AuditTimeout time.Duration

	WSAllowedOrigins []string
	WSReadIdle       time.Duration
	WSWriteTimeout   time.Duration
	WSPingInterval   time.Duration
	WSMessageRate    float64
	WSMessageBurst   int
}

// DefaultConfig returns the baseline auth API configuration.
func DefaultConfig() Config {
	return Config{
		TrustProxy:      false,
		MaxBodyBytes:    64 << 10,
		LoginRate:       0.2, // one attempt per 5s sustained
		LoginBurst:      10,
		LoginLimiterTTL: 15 * time.Minute,
		AuditTimeout:    2 * time.Second,

		WSAllowedOrigins: []string{"localhost", "127.0.0.1"},
		WSReadIdle:       2 * time.Minute,
		WSWriteTimeout:   5 * time.Second,
		WSPingInterval:   30 * time.Second,
		WSMessageRate:    1,
		WSMessageBurst:   5,
	}
}

// LoadConfigFromEnv loads auth config from LIBRA_AUTH_* variables with safe defaults.
// Invalid values fall back to defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()

	cfg := Config{
		TrustProxy:      envBool("LIBRA_AUTH_TRUST_PROXY", def.TrustProxy),
		MaxBodyBytes:    envInt64("LIBRA_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		LoginRate:       envFloat("LIBRA_AUTH_LOGIN_RATE", def.LoginRate),
		LoginBurst:      envInt("LIBRA_AUTH_LOGIN_BURST", def.LoginBurst),
		LoginLimiterTTL: envDuration("LIBRA_AUTH_LOGIN_LIMITER_TTL", def.LoginLimiterTTL),
		AuditTimeout:    envDuration("LIBRA_AUTH_AUDIT_TIMEOUT", def.AuditTimeout),

		WSAllowedOrigins: envCSV("LIBRA_AUTH_WS_ALLOWED_ORIGINS", def.WSAllowedOrigins),
		WSReadIdle:       envDuration("LIBRA_AUTH_WS_READ_IDLE", def.WSReadIdle),
		WSWriteTimeout:   envDuration("LIBRA_AUTH_WS_WRITE_TIMEOUT", def.WSWriteTimeout),
		WSPingInterval:   envDuration("LIBRA_AUTH_WS_PING_INTERVAL", def.WSPingInterval),
		WSMessageRate:    envFloat("LIBRA_AUTH_WS_MESSAGE_RATE", def.WSMessageRate),
		WSMessageBurst:   envInt("LIBRA_AUTH_WS_MESSAGE_BURST", def.WSMessageBurst),
	}

	// Burst below one would reject every request.
	if cfg.LoginBurst < 1 {
		cfg.LoginBurst = def.LoginBurst
	}
	if cfg.WSMessageBurst < 1 {
		cfg.WSMessageBurst = def.WSMessageBurst
	}

	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
