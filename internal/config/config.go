// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the switchai-router server.
// It handles loading and parsing YAML configuration files and provides structured
// access to the routing thresholds, provider tier maps, decision recorder, store,
// reporting and export settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// Routing holds the tier/model maps and the versioned threshold configuration.
	Routing RoutingConfig `yaml:"routing" json:"routing"`

	// Recorder controls the asynchronous decision recorder.
	Recorder RecorderConfig `yaml:"recorder" json:"recorder"`

	// Store selects the persistence backend for decision records.
	Store StoreConfig `yaml:"store" json:"-"`

	// Reporting configures the read-side report endpoints.
	Reporting ReportingConfig `yaml:"reporting" json:"-"`

	// Export configures record exports and optional object storage upload.
	Export ExportConfig `yaml:"export" json:"-"`
}

// RecorderConfig controls the decision recorder's bounded queues.
type RecorderConfig struct {
	// Enabled toggles decision recording. When false, decisions are still returned but never persisted.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Workers is the number of writer goroutines; each owns one queue shard.
	Workers int `yaml:"workers" json:"workers"`
	// QueueSize bounds the operations queued across all workers. It is split evenly
	// between the worker queues, at least one slot each. Operations beyond it are dropped.
	QueueSize int `yaml:"queue-size" json:"queue-size"`
	// MaxAttempts bounds how many times a failed write is tried before it is dropped.
	MaxAttempts int `yaml:"max-attempts" json:"max-attempts"`
	// RetryBackoff is the pause between attempts.
	RetryBackoff time.Duration `yaml:"retry-backoff" json:"retry-backoff"`
	// WriteTimeout bounds a single store call.
	WriteTimeout time.Duration `yaml:"write-timeout" json:"write-timeout"`
}

// StoreConfig selects the database driver and DSN.
type StoreConfig struct {
	// Driver is "sqlite3" or "pgx".
	Driver string `yaml:"driver"`
	// DSN is the data source name (file path for sqlite3, connection URL for pgx).
	DSN string `yaml:"dsn"`
	// RetentionDays bounds how long decision records are kept. Older records are pruned periodically.
	RetentionDays int `yaml:"retention-days"`
}

// ReportingConfig configures the report endpoints.
type ReportingConfig struct {
	// SecretKey guards report endpoints (plaintext or bcrypt hashed). Empty disables auth.
	SecretKey string `yaml:"secret-key"`
	// DefaultLookback is used when a report request omits "since".
	DefaultLookback time.Duration `yaml:"default-lookback"`
}

// ExportConfig configures record exports.
type ExportConfig struct {
	// Codec is one of "zstd", "gzip", "brotli" or "none".
	Codec string `yaml:"codec"`
	// ObjectStore is the optional S3-compatible upload target.
	ObjectStore ObjectStoreConfig `yaml:"object-store"`
}

// ObjectStoreConfig describes an S3-compatible bucket.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	UseSSL    bool   `yaml:"use-ssl"`
	Prefix    string `yaml:"prefix"`
}

// Enabled reports whether enough fields are present to attempt an upload.
func (o ObjectStoreConfig) Enabled() bool {
	return o.Endpoint != "" && o.Bucket != ""
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Routing:  RoutingConfig{Thresholds: DefaultThresholds()},
		Recorder: RecorderConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct, applies defaults and validates the result.
//
// Parameters:
//   - configFile: The path to the configuration file
//
// Returns:
//   - *Config: The loaded configuration
//   - error: An error if the configuration could not be loaded
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes into a validated Config.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	// Recorder is enabled unless explicitly disabled.
	cfg.Recorder.Enabled = true
	// Omitted threshold keys keep their defaults; explicit zeros are honoured.
	cfg.Routing.Thresholds = DefaultThresholds()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()

	if v := strings.TrimSpace(os.Getenv("ROUTER_STORE_DSN")); v != "" {
		cfg.Store.DSN = v
	}

	if cfg.Reporting.SecretKey != "" && !looksLikeBcrypt(cfg.Reporting.SecretKey) {
		hashed, errHash := hashSecret(cfg.Reporting.SecretKey)
		if errHash != nil {
			return nil, fmt.Errorf("failed to hash reporting key: %w", errHash)
		}
		cfg.Reporting.SecretKey = hashed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults. Thresholds that may
// legitimately be zero are left as they are; Default and ParseConfig seed them.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8790
	}

	c.Routing.applyDefaults()

	if c.Recorder.Workers <= 0 {
		c.Recorder.Workers = 2
	}
	if c.Recorder.QueueSize <= 0 {
		c.Recorder.QueueSize = 512
	}
	if c.Recorder.MaxAttempts <= 0 {
		c.Recorder.MaxAttempts = 2
	}
	if c.Recorder.RetryBackoff <= 0 {
		c.Recorder.RetryBackoff = 50 * time.Millisecond
	}
	if c.Recorder.WriteTimeout <= 0 {
		c.Recorder.WriteTimeout = 2 * time.Second
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite3"
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite3" {
		c.Store.DSN = "routing_decisions.db"
	}
	if c.Store.RetentionDays <= 0 {
		c.Store.RetentionDays = 90
	}

	if c.Reporting.DefaultLookback <= 0 {
		c.Reporting.DefaultLookback = 7 * 24 * time.Hour
	}

	c.Export.Codec = strings.ToLower(strings.TrimSpace(c.Export.Codec))
	if c.Export.Codec == "" {
		c.Export.Codec = "zstd"
	}
}

// Validate checks cross-field constraints. All failures wrap ErrInvalid.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	switch c.Store.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("%w: unsupported store driver %q", ErrInvalid, c.Store.Driver)
	}
	switch c.Export.Codec {
	case "zstd", "gzip", "brotli", "none":
	default:
		return fmt.Errorf("%w: unsupported export codec %q", ErrInvalid, c.Export.Codec)
	}
	return c.Routing.Validate()
}

// CheckReportingKey compares a presented key against the configured bcrypt hash.
// It returns true when no key is configured.
func (c *Config) CheckReportingKey(presented string) bool {
	if c.Reporting.SecretKey == "" {
		return true
	}
	if presented == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.Reporting.SecretKey), []byte(presented)) == nil
}

func looksLikeBcrypt(s string) bool {
	return len(s) > 4 && (s[:4] == "$2a$" || s[:4] == "$2b$" || s[:4] == "$2y$")
}

func hashSecret(secret string) (string, error) {
	// Use default cost for simplicity.
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}
