// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stagepass/stagepass/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Store configuration
	Store StoreConfig

	// Identity provider configuration
	Identity IdentityConfig

	// Rules configuration
	Rules RulesConfig

	// Audit configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StoreConfig holds permission store configuration
type StoreConfig struct {
	// PostgresURL is required in production; when empty the service falls
	// back to the in-memory store (local development only).
	PostgresURL      string
	PostgresMaxConns int

	// RedisURL enables the read-through record cache when set.
	RedisURL string
	CacheTTL time.Duration
}

// IdentityConfig holds identity provider configuration
type IdentityConfig struct {
	// IssuerURL is the OIDC issuer verifying bearer tokens.
	IssuerURL string
	ClientID  string

	// Admin surface used for user lookup, claims writes, and revocation.
	AdminBaseURL      string
	AdminTokenURL     string
	AdminClientID     string
	AdminClientSecret string
	AdminTimeout      time.Duration

	// UseFake swaps in the in-memory provider for local development.
	UseFake bool
}

// RulesConfig holds store rules configuration
type RulesConfig struct {
	// Path to the YAML policy; empty means the shipped default policy.
	Path string
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	Retention time.Duration
	// SweepSchedule is a cron expression for retention sweeps.
	SweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("STAGEPASS_HOST", "0.0.0.0"),
			Port:            getEnv("STAGEPASS_PORT", "8080"),
			ReadTimeout:     getEnvDuration("STAGEPASS_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("STAGEPASS_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("STAGEPASS_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("STAGEPASS_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("STAGEPASS_HEALTH_PORT", "9090"),
		},
		Store: StoreConfig{
			PostgresURL:      getEnv("STAGEPASS_POSTGRES_URL", ""),
			PostgresMaxConns: getEnvInt("STAGEPASS_POSTGRES_MAX_CONNS", 10),
			RedisURL:         getEnv("STAGEPASS_REDIS_URL", ""),
			CacheTTL:         getEnvDuration("STAGEPASS_CACHE_TTL", 5*time.Minute),
		},
		Identity: IdentityConfig{
			IssuerURL:         getEnv("STAGEPASS_OIDC_ISSUER_URL", ""),
			ClientID:          getEnv("STAGEPASS_OIDC_CLIENT_ID", ""),
			AdminBaseURL:      getEnv("STAGEPASS_IDENTITY_ADMIN_URL", ""),
			AdminTokenURL:     getEnv("STAGEPASS_IDENTITY_TOKEN_URL", ""),
			AdminClientID:     getEnv("STAGEPASS_IDENTITY_CLIENT_ID", ""),
			AdminClientSecret: getEnv("STAGEPASS_IDENTITY_CLIENT_SECRET", ""),
			AdminTimeout:      getEnvDuration("STAGEPASS_IDENTITY_TIMEOUT", 10*time.Second),
			UseFake:           getEnvBool("STAGEPASS_IDENTITY_FAKE", false),
		},
		Rules: RulesConfig{
			Path: getEnv("STAGEPASS_RULES_PATH", ""),
		},
		Audit: AuditConfig{
			Retention:     getEnvDuration("STAGEPASS_AUDIT_RETENTION", 90*24*time.Hour),
			SweepSchedule: getEnv("STAGEPASS_AUDIT_SWEEP_SCHEDULE", "@daily"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("STAGEPASS_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("STAGEPASS_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if !c.Identity.UseFake {
		if c.Identity.IssuerURL == "" {
			return fmt.Errorf("OIDC issuer URL is required")
		}
		if c.Identity.AdminBaseURL == "" {
			return fmt.Errorf("identity admin URL is required")
		}
	}

	if c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}
	return nil
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
