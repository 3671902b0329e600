package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the relay process.
type Config struct {
	// Required variables
	Port string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string

	// Relay tuning
	ReplayBufferSize int
	MaxClientsPerHub int

	// Rate limit (connect endpoint only)
	RateLimitConnect string
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}
	cfg.DevelopmentMode = cfg.GoEnv != "production"

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Optional: REPLAY_BUFFER_SIZE (defaults to 500)
	cfg.ReplayBufferSize = 500
	if v := os.Getenv("REPLAY_BUFFER_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errors = append(errors, fmt.Sprintf("REPLAY_BUFFER_SIZE must be a positive integer (got '%s')", v))
		} else {
			cfg.ReplayBufferSize = n
		}
	}

	// Optional: MAX_CLIENTS_PER_HUB (defaults to 64)
	cfg.MaxClientsPerHub = 64
	if v := os.Getenv("MAX_CLIENTS_PER_HUB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errors = append(errors, fmt.Sprintf("MAX_CLIENTS_PER_HUB must be a positive integer (got '%s')", v))
		} else {
			cfg.MaxClientsPerHub = n
		}
	}

	cfg.RateLimitConnect = getEnvOrDefault("RATE_LIMIT_CONNECT", "20-M")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// logValidatedConfig logs the validated configuration.
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"replay_buffer_size", cfg.ReplayBufferSize,
		"max_clients_per_hub", cfg.MaxClientsPerHub,
		"rate_limit_connect", cfg.RateLimitConnect,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
