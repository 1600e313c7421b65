package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBotSignatures are the user-agent substrings treated as bot traffic
// when BOT_SIGNATURES is unset.
var DefaultBotSignatures = []string{"bot", "spider", "crawler", "headless", "slurp", "googlebot"}

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RedisAddr    string
	// ClickHouse holds the click ledger.
	ClickHouseDSN string
	// Postgres holds tenants, ads accounts and fraud alerts.
	PostgresDSN string
	ServiceName string
	DebugTrace  bool

	// Ads API client configuration
	AdsAPIBaseURL        string
	AdsAPIVersion        string
	AdsDeveloperToken    string
	AdsAPITimeout        time.Duration
	AdsAPIRateLimited    bool
	AdsAPIRateCapacity   int
	AdsAPIRateRefillRate int

	// Detection defaults applied when a tenant has no stored settings
	DefaultClickThreshold int
	DefaultWindowHours    float64
	BotSignatures         []string
	BotUAParserEnabled    bool
	WasteClickFloor       int64

	// Suppression dispatch
	DispatchConcurrency int
	DispatchTimeout     time.Duration

	// Scheduled passes
	FraudPassInterval    time.Duration
	FraudPassConcurrency int
	PassLockTTL          time.Duration

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 30*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.ServiceName = getenv("SERVICE_NAME", "clickguard")
	cfg.DebugTrace = envBool("DEBUG_TRACE", false)

	cfg.AdsAPIBaseURL = getenv("ADS_API_BASE_URL", "https://googleads.googleapis.com")
	cfg.AdsAPIVersion = getenv("ADS_API_VERSION", "v17")
	cfg.AdsDeveloperToken = getenv("ADS_DEVELOPER_TOKEN", "")
	cfg.AdsAPITimeout = envDuration("ADS_API_TIMEOUT", 30*time.Second)
	cfg.AdsAPIRateLimited = envBool("ADS_API_RATE_LIMIT_ENABLED", true)
	cfg.AdsAPIRateCapacity = envInt("ADS_API_RATE_CAPACITY", 20)
	cfg.AdsAPIRateRefillRate = envInt("ADS_API_RATE_REFILL_RATE", 5)

	cfg.DefaultClickThreshold = envInt("DEFAULT_CLICK_THRESHOLD", 3)
	cfg.DefaultWindowHours = envFloat("DEFAULT_WINDOW_HOURS", 24)
	cfg.BotSignatures = envList("BOT_SIGNATURES", DefaultBotSignatures)
	cfg.BotUAParserEnabled = envBool("BOT_UA_PARSER_ENABLED", false)
	cfg.WasteClickFloor = int64(envInt("WASTE_CLICK_FLOOR", 10))

	cfg.DispatchConcurrency = envInt("DISPATCH_CONCURRENCY", 4)
	cfg.DispatchTimeout = envDuration("DISPATCH_TIMEOUT", 2*time.Minute)

	// 0 disables the scheduler
	cfg.FraudPassInterval = envDuration("FRAUD_PASS_INTERVAL", 15*time.Minute)
	cfg.FraudPassConcurrency = envInt("FRAUD_PASS_CONCURRENCY", 8)
	cfg.PassLockTTL = envDuration("PASS_LOCK_TTL", 10*time.Minute)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 25)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 5)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envList splits a comma separated variable into trimmed, lowercased,
// non-empty entries. When unset or empty after trimming, def is returned.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
