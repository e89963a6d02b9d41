package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config holds application configuration values.
type Config struct {
	Secret          string
	DatabaseDSN     string
	HTTPPort        string
	ProductsCSV     string
	StoreName       string
	LogLevel        string
	AdminPassword   string
	CashierPassword string

	// Console side.
	APIBaseURL     string
	RequestTimeout time.Duration
	StateBackend   string
	StateDSN       string
	RedisAddr      string
	OutboxInterval time.Duration
}

// Load reads configuration from environment variables with reasonable defaults.
// Callers load any .env file first.
func Load(logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}

	port := getEnv("HTTP_PORT", "5000")
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		logger.Warn("invalid HTTP_PORT, defaulting to 5000", zap.String("value", port))
		port = "5000"
	}

	return Config{
		Secret:          getEnv("SECRET", "dev_secret"),
		DatabaseDSN:     getEnv("DATABASE_DSN", "smartstore.db"),
		HTTPPort:        port,
		ProductsCSV:     getEnv("PRODUCTS_CSV", "assets/products.csv"),
		StoreName:       getEnv("STORE_NAME", "Smart Store"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", "admin123"),
		CashierPassword: getEnv("CASHIER_PASSWORD", "cashier123"),

		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:5000/api"),
		RequestTimeout: getDuration(logger, "REQUEST_TIMEOUT", 5*time.Second),
		StateBackend:   getEnv("STATE_BACKEND", "sqlite"),
		StateDSN:       getEnv("STATE_DSN", "console-state.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		OutboxInterval: getDuration(logger, "OUTBOX_INTERVAL", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(logger *zap.Logger, key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration, using default",
			zap.String("key", key),
			zap.String("value", raw),
			zap.Duration("default", fallback))
		return fallback
	}
	return d
}
