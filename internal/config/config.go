// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the permsync server and CLI.
type Config struct {
	MetaDBPath string // path to SQLite metastore file
	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")

	// InstancesFile is an optional YAML inventory of instances seeded
	// into the registry at startup.
	InstancesFile string

	// SyncBatchSize bounds the account changes committed per
	// transaction during reconciliation (default 100).
	SyncBatchSize int
	// SyncWorkers bounds parallel instance reconciliation; 1 keeps the
	// strictly sequential reference dispatch (default 1).
	SyncWorkers int
	// CatalogQPS caps catalog queries per second per instance;
	// 0 disables pacing.
	CatalogQPS float64

	// AssignBatchSize bounds assignment inserts per transaction
	// (default 200).
	AssignBatchSize int
	// RuleCacheTTL is the rule-set cache lifetime (default 5m).
	RuleCacheTTL time.Duration

	// SyncSchedule and ClassifySchedule are cron expressions; empty
	// disables the corresponding periodic trigger.
	SyncSchedule     string
	ClassifySchedule string

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadFromEnv loads configuration from environment variables and applies
// defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:       os.Getenv("META_DB_PATH"),
		ListenAddr:       os.Getenv("LISTEN_ADDR"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		InstancesFile:    os.Getenv("INSTANCES_FILE"),
		SyncSchedule:     os.Getenv("SYNC_SCHEDULE"),
		ClassifySchedule: os.Getenv("CLASSIFY_SCHEDULE"),
		SyncBatchSize:    parseIntEnv("SYNC_BATCH_SIZE", 100),
		SyncWorkers:      parseIntEnv("SYNC_WORKERS", 1),
		AssignBatchSize:  parseIntEnv("ASSIGN_BATCH_SIZE", 200),
		RuleCacheTTL:     parseDurationEnv("RULE_CACHE_TTL", 5*time.Minute),
	}

	if v := os.Getenv("CATALOG_QPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CATALOG_QPS %q: %w", v, err)
		}
		cfg.CatalogQPS = f
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MetaDBPath == "" {
		c.MetaDBPath = "permsync.sqlite"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if len(c.CORSAllowedOrigins) == 0 {
		c.CORSAllowedOrigins = []string{"*"}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", c.SyncBatchSize)
	}
	if c.SyncWorkers <= 0 {
		return fmt.Errorf("SYNC_WORKERS must be positive, got %d", c.SyncWorkers)
	}
	if c.AssignBatchSize <= 0 {
		return fmt.Errorf("ASSIGN_BATCH_SIZE must be positive, got %d", c.AssignBatchSize)
	}
	if c.CatalogQPS < 0 {
		return fmt.Errorf("CATALOG_QPS must not be negative, got %v", c.CatalogQPS)
	}
	return nil
}

func parseIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
