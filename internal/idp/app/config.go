package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Algorithms []string // Signing algorithms to generate keys for (default: ES256)
	NumKeys    int      // Number of signing keys per algorithm (default: 2)
	RSABits    int      // RSA key size for RS256 (default: 2048)

	DatabaseFile string // Path to SQLite database file (default: ./grantd.db)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)

	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-record cleanup interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Algorithms:           splitList(getEnvOrDefault("GRANTD_ALGORITHMS", "ES256")),
		NumKeys:              getEnvIntOrDefault("GRANTD_NUM_KEYS", 0),
		RSABits:              getEnvIntOrDefault("GRANTD_RSA_BITS", 0),
		DatabaseFile:         getEnvOrDefault("GRANTD_DATABASE_FILE", "grantd.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
