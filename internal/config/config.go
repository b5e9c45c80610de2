// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const devTokenSecret = "dev-secret-change-me"

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string // empty disables the gRPC listener
	FrontendURL string
	DBPath      string
	Token       TokenConfig
	Snapshot    SnapshotConfig
	Retry       RetryConfig
	Timeout     TimeoutConfig
}

// TokenConfig controls bearer tokens issued to non-browser clients.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// SnapshotConfig controls the daily snapshot worker.
type SnapshotConfig struct {
	Schedule          string
	Retention         time.Duration
	UserInactivityTTL time.Duration
	WorkerRunTimeout  time.Duration
}

// RetryConfig controls retries of SQLite busy/locked errors.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// TimeoutConfig holds request-scoped timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
	PushWrite   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	maxRetries := getEnvInt("DB_MAX_RETRIES", 3)
	if maxRetries <= 0 {
		maxRetries = 3
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/ecotrace.db"),
		Token: TokenConfig{
			Secret: getEnv("TOKEN_SECRET", devTokenSecret),
			Issuer: getEnv("TOKEN_ISSUER", "ecotrace"),
			TTL:    getEnvDuration("TOKEN_TTL", 30*24*time.Hour),
		},
		Snapshot: SnapshotConfig{
			Schedule:          getEnv("SNAPSHOT_SCHEDULE", "0 0 * * *"),
			Retention:         getEnvDuration("SNAPSHOT_RETENTION", 90*24*time.Hour),
			UserInactivityTTL: getEnvDuration("USER_INACTIVITY_TTL", 180*24*time.Hour),
			WorkerRunTimeout:  getEnvDuration("SNAPSHOT_RUN_TIMEOUT", 5*time.Minute),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     maxRetries,
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Timeout: TimeoutConfig{
			HealthCheck: 5 * time.Second,
			Shutdown:    10 * time.Second,
			PushWrite:   5 * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.GRPCPort != "" && c.GRPCPort == c.Port {
		return fmt.Errorf("GRPC_PORT must differ from PORT")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("TOKEN_SECRET cannot be empty")
	}
	if c.Token.Secret == devTokenSecret && !c.IsDevelopment() {
		return fmt.Errorf("TOKEN_SECRET must be set outside development")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be > 0")
	}
	if _, err := cron.ParseStandard(c.Snapshot.Schedule); err != nil {
		return fmt.Errorf("SNAPSHOT_SCHEDULE is not a valid cron spec: %w", err)
	}
	if c.Snapshot.Retention <= 0 {
		return fmt.Errorf("SNAPSHOT_RETENTION must be > 0")
	}
	if c.Snapshot.UserInactivityTTL <= 0 {
		return fmt.Errorf("USER_INACTIVITY_TTL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
