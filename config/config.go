// Package config provides application configuration management.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Kronos server
	URL          string
	Namespace    string
	Timeout      time.Duration
	RetryCeiling int
	RetryDelay   time.Duration

	// Checkpoint store
	CheckpointDriver string
	CheckpointDSN    string

	// Redis relay
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	RelayStream      string
	RelayGroup       string

	// Mock server
	MockAddr string

	LogLevel string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	driver := getEnv("KRONOS_CHECKPOINT_DRIVER", "sqlite")
	dsn := getEnv("KRONOS_CHECKPOINT_DSN", "")
	if dsn == "" && driver == "postgres" {
		dsn = os.Getenv("POSTGRES_DSN")
	}
	if dsn == "" {
		dsn = filepath.Join(stateDir(), "checkpoints.db")
	}
	return &Config{
		URL:              getEnv("KRONOS_URL", "http://127.0.0.1:8150"),
		Namespace:        getEnv("KRONOS_NAMESPACE", ""),
		Timeout:          getEnvDuration("KRONOS_TIMEOUT", 30*time.Second),
		RetryCeiling:     getEnvInt("KRONOS_RETRY_CEILING", 10),
		RetryDelay:       getEnvDuration("KRONOS_RETRY_DELAY", 100*time.Millisecond),
		CheckpointDriver: driver,
		CheckpointDSN:    dsn,
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisUsername:    getEnv("REDIS_USERNAME", ""),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:  getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure: getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		RelayStream:      getEnv("RELAY_STREAM", "kronos:events"),
		RelayGroup:       getEnv("RELAY_GROUP", "kronos-ingest"),
		MockAddr:         getEnv("MOCK_ADDR", ":8150"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

func stateDir() string {
	if dir := os.Getenv("KRONOS_STATE_DIR"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "kronos")
	}
	return "."
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s: %s, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Printf("Invalid bool for %s: %s, using default %t", key, value, defaultValue)
		}
	}
	return defaultValue
}
