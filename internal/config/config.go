package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Database URLs. Postgres is the system of record and required;
	// ClickHouse and Redis are optional sidecars.
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Worker pool
	WorkerCount int
	QueueSize   int

	// Shutdown
	ShutdownTimeout time.Duration
}

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		ClickHouseURL: getEnv("CLICKHOUSE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),

		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 256),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	rawOrigins := strings.Split(origins, ",")
	for _, o := range rawOrigins {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
