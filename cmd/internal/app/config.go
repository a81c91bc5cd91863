package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string

	// LogLevel is debug|info|warn|error. LogFormat is json|pretty|auto;
	// auto picks pretty when stdout is a terminal.
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// Empty DatabaseURL runs with the in-memory principal store and log-only audit.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// DBConnectRetries bounds startup ping retries before giving up.
	DBConnectRetries int

	// If true, the principals and audit_log tables are created at startup.
	DBAutoMigrate bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// Non-empty AuditKafkaBrokers also publishes audit events to AuditKafkaTopic.
	AuditKafkaBrokers []string
	AuditKafkaTopic   string

	// Security policy:
	// If true, LIBRA_PASSWORD_SCHEME must be argon2id; legacy sha256 hashes still verify.
	RequireArgon2id bool

	// Optional first account, created as Super Admin when the username is free.
	BootstrapAdminUsername   string
	BootstrapAdminPassword   string
	BootstrapAdminMustChange bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("LIBRA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("LIBRA_LOG_LEVEL", "info"),
		LogFormat: EnvString("LIBRA_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LIBRA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LIBRA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LIBRA_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LIBRA_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("LIBRA_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("LIBRA_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("LIBRA_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("LIBRA_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("LIBRA_DB_MIN_CONNS", 0),
		DBSchema:      EnvString("LIBRA_DB_SCHEMA", "libra"),
		DBAutoMigrate: EnvBool("LIBRA_DB_AUTO_MIGRATE", true),

		DBConnectRetries: EnvInt("LIBRA_DB_CONNECT_RETRIES", 5),

		ReadinessRequireDB: EnvBool("LIBRA_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvCSV("LIBRA_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("LIBRA_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("LIBRA_CORS_MAX_AGE_SECONDS", 600),

		AuditKafkaBrokers: EnvCSV("LIBRA_AUDIT_KAFKA_BROKERS", nil),
		AuditKafkaTopic:   EnvString("LIBRA_AUDIT_KAFKA_TOPIC", "libra.audit"),

		RequireArgon2id: EnvBool("LIBRA_REQUIRE_ARGON2ID", true),

		BootstrapAdminUsername:   EnvString("LIBRA_BOOTSTRAP_ADMIN_USERNAME", ""),
		BootstrapAdminPassword:   EnvString("LIBRA_BOOTSTRAP_ADMIN_PASSWORD", ""),
		BootstrapAdminMustChange: EnvBool("LIBRA_BOOTSTRAP_ADMIN_MUST_CHANGE", true),
	}
}
