package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// RunMigrations applies embedded migrations on startup when the
	// database is configured.
	RunMigrations bool

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// SweepInterval drives the background cleanup of long-expired session
	// rows; SweepRetention is how long past expiry a row is kept for
	// forensics before deletion.
	SweepInterval  time.Duration
	SweepRetention time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("COMMONS_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("COMMONS_LOG_LEVEL", "info"),
		LogFormat: EnvString("COMMONS_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("COMMONS_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("COMMONS_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("COMMONS_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("COMMONS_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("COMMONS_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("COMMONS_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("COMMONS_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("COMMONS_DB_MIN_CONNS", 0),

		RunMigrations: EnvBool("COMMONS_DB_MIGRATE", true),

		ReadinessRequireDB: EnvBool("COMMONS_READINESS_REQUIRE_DB", false),

		SweepInterval:  EnvDuration("COMMONS_SESSION_SWEEP_INTERVAL", time.Hour),
		SweepRetention: EnvDuration("COMMONS_SESSION_SWEEP_RETENTION", 30*24*time.Hour),
	}
}
