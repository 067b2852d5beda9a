package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything main needs to wire the service.
type Config struct {
	Port         string
	Env          string
	StoreBackend string // "memory" or "postgres"
	DatabaseURL  string
	KafkaBrokers []string // empty disables event publishing

	RetryBudget  int
	RetryBackoff time.Duration
}

// Load reads the optional .env file and falls back to process env vars.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on system env variables")
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		RetryBudget:  getEnvInt("LEDGER_RETRY_BUDGET", 5),
		RetryBackoff: time.Duration(getEnvInt("LEDGER_RETRY_BACKOFF_MS", 10)) * time.Millisecond,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring non-numeric env value", "key", key, "value", raw)
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
