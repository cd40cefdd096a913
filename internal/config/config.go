package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Workstream server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Lease    LeaseConfig
	Catalog  CatalogConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// LeaseConfig controls the claim lease. Timeout must exceed the worst-case
// legitimate processing time of one claim cycle, or live work will be
// reclaimed and double-processed.
type LeaseConfig struct {
	Timeout       time.Duration
	SweepInterval time.Duration
}

type CatalogConfig struct {
	ContentBulkSize int
	ClaimBulkSize   int
	StatsCacheTTL   time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("WORKSTREAM_PORT", 8080),
			Env:  envString("WORKSTREAM_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Lease: LeaseConfig{
			Timeout:       envDurationSecs("LEASE_TIMEOUT_SECS", time.Hour),
			SweepInterval: envDuration("LEASE_SWEEP_INTERVAL", 5*time.Minute),
		},
		Catalog: CatalogConfig{
			ContentBulkSize: envInt("CONTENT_BULK_SIZE", 100),
			ClaimBulkSize:   envInt("CLAIM_BULK_SIZE", 10),
			StatsCacheTTL:   envDuration("STATS_CACHE_TTL", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Lease.Timeout < time.Second {
		return fmt.Errorf("LEASE_TIMEOUT_SECS must be at least 1 second, got %s", c.Lease.Timeout)
	}
	if c.Lease.SweepInterval <= 0 {
		return fmt.Errorf("LEASE_SWEEP_INTERVAL must be positive, got %s", c.Lease.SweepInterval)
	}

	if c.Catalog.ContentBulkSize <= 0 {
		return fmt.Errorf("CONTENT_BULK_SIZE must be positive, got %d", c.Catalog.ContentBulkSize)
	}
	if c.Catalog.ClaimBulkSize <= 0 {
		return fmt.Errorf("CLAIM_BULK_SIZE must be positive, got %d", c.Catalog.ClaimBulkSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
