// Package config loads process configuration from the environment.
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the full process configuration. Each binary reads what it needs.
type Config struct {
	Env      string
	Port     string
	LogLevel string

	Storage     string
	DatabaseURL string
	DBMaxConns  int

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	OutboxBatchSize    int
	OutboxInterval     time.Duration
	AlertSweepInterval time.Duration

	LedgerMaxRetries int
}

// Development reports whether the process runs in development mode.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// LockEnabled reports whether record writes go through the Redis locker.
func (c *Config) LockEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnv("APP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Storage:     strings.ToLower(getEnv("STORAGE", StoragePostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 20),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		LockTTL:       getEnvDuration("LOCK_TTL", 5*time.Second),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "inventory.alerts"),

		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
		OutboxInterval:     getEnvDuration("OUTBOX_INTERVAL", 2*time.Second),
		AlertSweepInterval: getEnvDuration("ALERT_SWEEP_INTERVAL", time.Hour),

		LedgerMaxRetries: getEnvInt("LEDGER_MAX_RETRIES", 3),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	var errs []error
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE=postgres"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage))
	}
	if c.JWTSecret == "" && !c.Development() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if c.LedgerMaxRetries < 0 {
		errs = append(errs, errors.New("LEDGER_MAX_RETRIES must not be negative"))
	}
	if c.OutboxInterval <= 0 || c.AlertSweepInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_INTERVAL and ALERT_SWEEP_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
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
