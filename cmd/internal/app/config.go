package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// JWTSecret verifies bearer tokens on the websocket handshake and the
	// messaging API. Tokens are never minted here.
	JWTSecret string

	// Browser CORS allowlist. Empty means no CORS enforcement.
	// Entries ending in ":*" match any port, e.g. "http://127.0.0.1:*".
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, LINKUP_JWT_SECRET MUST be at least 32 bytes.
	RequireStrongSecret bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("LINKUP_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("LINKUP_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("LINKUP_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LINKUP_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LINKUP_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LINKUP_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("LINKUP_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("LINKUP_DATABASE_URL", ""),
		DBSchema:    EnvString("LINKUP_DB_SCHEMA", "linkup"),
		DBMaxConns:  EnvInt32("LINKUP_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("LINKUP_DB_MIN_CONNS", 0),

		JWTSecret: EnvString("LINKUP_JWT_SECRET", ""),

		CORSAllowedOrigins:   EnvCSV("LINKUP_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("LINKUP_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("LINKUP_CORS_MAX_AGE_SECONDS", 600),

		ReadinessRequireDB: EnvBool("LINKUP_READINESS_REQUIRE_DB", false),

		RequireStrongSecret: EnvBool("LINKUP_REQUIRE_STRONG_SECRET", false),
	}
}
