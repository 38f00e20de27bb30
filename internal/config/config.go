// Package config provides configuration management for the service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Kafka    KafkaConfig
	Gemini   GeminiConfig
	GCS      GCSConfig
	SMTP     SMTPConfig
	Worker   WorkerConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the Postgres connection settings. An empty URL
// selects the in-memory store.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// KafkaConfig holds event publishing settings. An empty broker list
// selects the in-memory publisher.
type KafkaConfig struct {
	Brokers []string
}

// GeminiConfig holds settings for the receipt scanning model.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GCSConfig holds receipt image storage settings. An empty bucket
// selects the in-memory blob store.
type GCSConfig struct {
	Bucket string
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Load loads configuration from environment variables.
// It automatically loads a .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	smtpPort, err := parseIntEnv("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	maxConns, err := parseIntEnv("DATABASE_MAX_OPEN_CONNS", 10)
	if err != nil {
		return nil, err
	}
	batchSize, err := parseIntEnv("WORKER_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDurationEnv("WORKER_POLL_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	tokenTTL, err := parseDurationEnv("JWT_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("PORT", "8080"),
			ShutdownTimeout: shutdownTimeout,
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: maxConns,
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  tokenTTL,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		GCS: GCSConfig{
			Bucket: os.Getenv("GCS_BUCKET"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     smtpPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnvOrDefault("SMTP_FROM", "alerts@wealth-tracker.local"),
		},
		Worker: WorkerConfig{
			PollInterval: pollInterval,
			BatchSize:    batchSize,
		},
	}

	return config, nil
}

// Validate checks that the settings required for serving requests are set.
func (c *Config) Validate() error {
	var missing []string

	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an int from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}

	return parsed, nil
}

// parseDurationEnv parses a time.Duration from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}

	return parsed, nil
}

// splitList splits a comma-separated list, trimming whitespace and
// dropping empty items.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
