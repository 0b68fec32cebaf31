package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ConfigCacheTTL time.Duration

	ChannelMaxConcurrent int64

	OutboundTimeout    time.Duration
	OutboundMaxRetries int

	NotifyMaxAttempts int

	Risk RiskConfig
}

type RiskConfig struct {
	Enabled         bool
	MaxFailures     int64
	FailureWindow   time.Duration
	MaxOrdersPerIP  int64
	OrderWindow     time.Duration
	MaxSingleAmount int64
	BlacklistExpiry time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "payflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		ConfigCacheTTL: getenvDuration("CHANNEL_CONFIG_CACHE_TTL", 5*time.Minute),

		ChannelMaxConcurrent: getenvInt64("CHANNEL_MAX_CONCURRENT", 64),

		OutboundTimeout:    getenvDuration("OUTBOUND_TIMEOUT", 10*time.Second),
		OutboundMaxRetries: getenvInt("OUTBOUND_MAX_RETRIES", 3),

		NotifyMaxAttempts: getenvInt("NOTIFY_MAX_ATTEMPTS", 5),

		Risk: RiskConfig{
			Enabled:         getenvBool("RISK_ENABLED", true),
			MaxFailures:     getenvInt64("RISK_MAX_FAILURES", 5),
			FailureWindow:   getenvDuration("RISK_FAILURE_WINDOW", 10*time.Minute),
			MaxOrdersPerIP:  getenvInt64("RISK_MAX_ORDERS_PER_IP", 30),
			OrderWindow:     getenvDuration("RISK_ORDER_WINDOW", time.Minute),
			MaxSingleAmount: getenvInt64("RISK_MAX_SINGLE_AMOUNT", 1_000_000),
			BlacklistExpiry: getenvDuration("RISK_BLACKLIST_EXPIRY", 24*time.Hour),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
