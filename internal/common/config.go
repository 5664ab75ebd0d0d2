package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Monitor  MonitorConfig  `toml:"monitor"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// StorageConfig controls the job queue and the in-memory blob store.
// Duration fields are compact strings ("10m", "1s", "250ms").
type StorageConfig struct {
	MaxJobs         int    `toml:"max_jobs" validate:"min=1"`
	MaxPendingJobs  int    `toml:"max_pending_jobs" validate:"min=1"`
	Workers         int    `toml:"workers" validate:"min=1"`
	BlobMaxAge      string `toml:"blob_max_age"`
	PruneInterval   string `toml:"prune_interval"`
	UploadTimeout   string `toml:"upload_timeout"`
	DownloadTimeout string `toml:"download_timeout"`
}

type DatabaseConfig struct {
	Type               string `toml:"type" validate:"oneof=sqlite postgres mysql"`
	Path               string `toml:"path"`
	Name               string `toml:"name"`
	TransactionRetries int    `toml:"transaction_retries" validate:"min=1"`
}

type AuthConfig struct {
	SecretKey       string `toml:"secret_key" validate:"required"`
	Algorithm       string `toml:"algorithm" validate:"oneof=HS256"`
	TokenExpiration string `toml:"token_expiration"`
}

type MonitorConfig struct {
	MaxMemoryPercent float64 `toml:"max_memory_percent" validate:"gt=0,lte=100"`
	SampleInterval   string  `toml:"sample_interval"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Storage: StorageConfig{
			MaxJobs:         10,
			MaxPendingJobs:  100,
			Workers:         4,
			BlobMaxAge:      "10m",
			PruneInterval:   "1s",
			UploadTimeout:   "10m",
			DownloadTimeout: "10m",
		},
		Database: DatabaseConfig{
			Type:               "sqlite",
			Path:               "./data/stash.db",
			Name:               "stash",
			TransactionRetries: 3,
		},
		Auth: AuthConfig{
			// Development fallback. Deployments set STASH_SECRET_KEY
			// or [auth] secret_key.
			SecretKey:       "stash-dev-secret",
			Algorithm:       "HS256",
			TokenExpiration: "15m",
		},
		Monitor: MonitorConfig{
			MaxMemoryPercent: 50.0,
			SampleInterval:   "5s",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Server configuration
	if port := os.Getenv("STASH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("STASH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("STASH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage configuration
	if maxJobs := os.Getenv("STASH_STORAGE_MAX_JOBS"); maxJobs != "" {
		if mj, err := strconv.Atoi(maxJobs); err == nil {
			config.Storage.MaxJobs = mj
		}
	}
	if maxPending := os.Getenv("STASH_STORAGE_MAX_PENDING"); maxPending != "" {
		if mp, err := strconv.Atoi(maxPending); err == nil {
			config.Storage.MaxPendingJobs = mp
		}
	}
	if blobMaxAge := os.Getenv("STASH_STORAGE_BLOB_MAX_AGE"); blobMaxAge != "" {
		if _, err := time.ParseDuration(blobMaxAge); err == nil {
			config.Storage.BlobMaxAge = blobMaxAge
		}
	}
	if pruneInterval := os.Getenv("STASH_STORAGE_PRUNE_INTERVAL"); pruneInterval != "" {
		if _, err := time.ParseDuration(pruneInterval); err == nil {
			config.Storage.PruneInterval = pruneInterval
		}
	}

	// Database configuration
	if dbType := os.Getenv("STASH_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbPath := os.Getenv("STASH_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if retries := os.Getenv("STASH_DATABASE_TRANSACTION_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Database.TransactionRetries = r
		}
	}

	// Auth configuration
	if secretKey := os.Getenv("STASH_SECRET_KEY"); secretKey != "" {
		config.Auth.SecretKey = secretKey
	}
	if tokenExpiration := os.Getenv("STASH_TOKEN_EXPIRATION"); tokenExpiration != "" {
		if _, err := time.ParseDuration(tokenExpiration); err == nil {
			config.Auth.TokenExpiration = tokenExpiration
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks field constraints and that every duration string parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"storage.blob_max_age":     c.Storage.BlobMaxAge,
		"storage.prune_interval":   c.Storage.PruneInterval,
		"storage.upload_timeout":   c.Storage.UploadTimeout,
		"storage.download_timeout": c.Storage.DownloadTimeout,
		"auth.token_expiration":    c.Auth.TokenExpiration,
		"monitor.sample_interval":  c.Monitor.SampleInterval,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}

	return nil
}

// Duration accessors. Validate guarantees the strings parse, so the
// zero value is only returned for an unvalidated config.

func (c *Config) BlobMaxAge() time.Duration      { return parseDuration(c.Storage.BlobMaxAge) }
func (c *Config) PruneInterval() time.Duration   { return parseDuration(c.Storage.PruneInterval) }
func (c *Config) UploadTimeout() time.Duration   { return parseDuration(c.Storage.UploadTimeout) }
func (c *Config) DownloadTimeout() time.Duration { return parseDuration(c.Storage.DownloadTimeout) }
func (c *Config) TokenExpiration() time.Duration { return parseDuration(c.Auth.TokenExpiration) }
func (c *Config) SampleInterval() time.Duration  { return parseDuration(c.Monitor.SampleInterval) }

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
