// Package config loads application configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fedid/guestsync/pkg/mail"
	"github.com/fedid/guestsync/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	SMTP         mail.SMTPConfig
	Provisioning ProvisioningConfig
	LogLevel     observability.LogLevel
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// BaseURL is the public URL used in invitation mails
	BaseURL string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// ProvisioningConfig holds synchronizer settings
type ProvisioningConfig struct {
	// URNPrefix heads every group URN handed to remote systems
	URNPrefix string
	// OperatorAddress receives failure notifications and digests
	OperatorAddress string
	// DigestSchedule is a cron expression for the failure digest;
	// empty disables it
	DigestSchedule string
	// AuthorityCacheSize bounds the LRU of resolved principals
	AuthorityCacheSize int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GUESTSYNC_HOST", "0.0.0.0"),
			Port:            getEnv("GUESTSYNC_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GUESTSYNC_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GUESTSYNC_WRITE_TIMEOUT", 2*time.Minute),
			IdleTimeout:     getEnvDuration("GUESTSYNC_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GUESTSYNC_SHUTDOWN_TIMEOUT", 30*time.Second),
			BaseURL:         getEnv("GUESTSYNC_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("GUESTSYNC_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("GUESTSYNC_POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("GUESTSYNC_POSTGRES_MAX_IDLE_CONNS", 5),
		},
		SMTP: mail.SMTPConfig{
			Host:     getEnv("GUESTSYNC_SMTP_HOST", ""),
			Port:     getEnv("GUESTSYNC_SMTP_PORT", "25"),
			Username: getEnv("GUESTSYNC_SMTP_USERNAME", ""),
			Password: getEnv("GUESTSYNC_SMTP_PASSWORD", ""),
			From:     getEnv("GUESTSYNC_SMTP_FROM", "no-reply@guestsync.local"),
		},
		Provisioning: ProvisioningConfig{
			URNPrefix:          getEnv("GUESTSYNC_URN_PREFIX", "urn:collab:group"),
			OperatorAddress:    getEnv("GUESTSYNC_OPERATOR_ADDRESS", ""),
			DigestSchedule:     getEnv("GUESTSYNC_FAILURE_DIGEST_SCHEDULE", "0 7 * * *"),
			AuthorityCacheSize: getEnvInt("GUESTSYNC_AUTHORITY_CACHE_SIZE", 1024),
		},
		LogLevel: observability.ParseLogLevel(getEnv("GUESTSYNC_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Provisioning.URNPrefix == "" {
		return fmt.Errorf("group URN prefix is required")
	}
	if c.Provisioning.OperatorAddress == "" {
		return fmt.Errorf("operator address is required: delivery failures must reach someone")
	}
	return nil
}

// getEnv retrieves an environment variable with a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable with a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable with a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
