package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Database configuration
	DatabasePath string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Auth configuration
	JWTSecret string

	// Order lifecycle configuration
	OrderTTL            time.Duration
	PollInterval        time.Duration
	CountdownTick       time.Duration
	ExpireSweepInterval time.Duration

	// Payment gateway configuration
	PaymentProvider   string
	WepayBaseURL      string
	WepayAppID        string
	WepayMerchantID   string
	WepayClientKey    string
	WepayHMACKey      string
	WepayNotifyKey    string
	WepayPNSubKey     string
	WepayPNSubSecret  string
	WepayPNCipherKey  string
	WepayPNUUID       string
	WepayPNChannel    string
	PaymentCurrency   string

	// Rate limiting
	OrderRateLimit int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/community-events.db"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Auth
		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		// Order lifecycle
		OrderTTL:            getEnvAsDuration("ORDER_TTL", "15m"),
		PollInterval:        getEnvAsDuration("ORDER_POLL_INTERVAL", "3s"),
		CountdownTick:       getEnvAsDuration("ORDER_COUNTDOWN_TICK", "1s"),
		ExpireSweepInterval: getEnvAsDuration("ORDER_EXPIRE_SWEEP_INTERVAL", "30s"),

		// Payment gateway
		PaymentProvider:  getEnv("PAYMENT_PROVIDER", "mock"),
		WepayBaseURL:     getEnv("WEPAY_BASE_URL", ""),
		WepayAppID:       getEnv("WEPAY_APP_ID", ""),
		WepayMerchantID:  getEnv("WEPAY_MERCHANT_ID", ""),
		WepayClientKey:   getEnv("WEPAY_CLIENT_KEY", ""),
		WepayHMACKey:     getEnv("WEPAY_HMAC_KEY", ""),
		WepayNotifyKey:   getEnv("WEPAY_NOTIFY_KEY", ""),
		WepayPNSubKey:    getEnv("WEPAY_PN_SUB_KEY", ""),
		WepayPNSubSecret: getEnv("WEPAY_PN_SUB_SECRET", ""),
		WepayPNCipherKey: getEnv("WEPAY_PN_CIPHER_KEY", ""),
		WepayPNUUID:      getEnv("WEPAY_PN_UUID", ""),
		WepayPNChannel:   getEnv("WEPAY_PN_CHANNEL", "wepay-payment-notifications"),
		PaymentCurrency:  getEnv("PAYMENT_CURRENCY", "CNY"),

		// Rate limiting
		OrderRateLimit: getEnvAsInt("ORDER_RATE_LIMIT", 10),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, fall back to the default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
