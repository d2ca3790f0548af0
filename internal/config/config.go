package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT (shared across all apps)
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Server
	Port           string
	RealtimePort   string
	CORSOrigins    string
	RequestTimeout time.Duration

	// Realtime fan-out across nodes; empty keeps it in-process
	RedisURL string

	// Moderation
	Moderation ModerationConfig

	// App registry
	AppsConfigPath string
}

// ModerationConfig holds the input bounds and retention knobs of the
// report engine. Thresholds for escalation are not configurable.
type ModerationConfig struct {
	DescriptionMin       int
	DescriptionMax       int
	ReviewNoteMin        int
	BlockReasonMin       int
	CommentFlagThreshold int
	ReportRetention      time.Duration
	SweepInterval        time.Duration
}

// DefaultModeration is used by Load and by tests that build services
// without the environment.
func DefaultModeration() ModerationConfig {
	return ModerationConfig{
		DescriptionMin:       10,
		DescriptionMax:       1000,
		ReviewNoteMin:        5,
		BlockReasonMin:       10,
		CommentFlagThreshold: 3,
		ReportRetention:      90 * 24 * time.Hour,
		SweepInterval:        10 * time.Minute,
	}
}

func Load() *Config {
	def := DefaultModeration()
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "abuse_engine"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		Port:           getEnv("PORT", "8080"),
		RealtimePort:   getEnv("REALTIME_PORT", "8081"),
		CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
		RequestTimeout: parseDuration(getEnv("REQUEST_TIMEOUT", "10s"), 10*time.Second),

		RedisURL: getEnv("REDIS_URL", ""),

		Moderation: ModerationConfig{
			DescriptionMin:       parseInt(getEnv("REPORT_DESCRIPTION_MIN", ""), def.DescriptionMin),
			DescriptionMax:       parseInt(getEnv("REPORT_DESCRIPTION_MAX", ""), def.DescriptionMax),
			ReviewNoteMin:        parseInt(getEnv("REVIEW_NOTE_MIN", ""), def.ReviewNoteMin),
			BlockReasonMin:       parseInt(getEnv("BLOCK_REASON_MIN", ""), def.BlockReasonMin),
			CommentFlagThreshold: parseInt(getEnv("COMMENT_FLAG_THRESHOLD", ""), def.CommentFlagThreshold),
			ReportRetention:      parseDuration(getEnv("REPORT_RETENTION", ""), def.ReportRetention),
			SweepInterval:        parseDuration(getEnv("SWEEP_INTERVAL", ""), def.SweepInterval),
		},

		AppsConfigPath: getEnv("APPS_CONFIG_PATH", "apps.json"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
