// Package config provides configuration management for the rotation worker.
// It uses koanf v2 to load configuration from YAML files and supports
// saving updated configuration (e.g., persisting api_key after registration).
//
// Configuration is loaded from /etc/rotation-worker/config.yaml by default.
// The configuration file should have restricted permissions (0600) as it
// contains sensitive credentials like the API key.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default location for the worker configuration file.
const DefaultConfigPath = "/etc/rotation-worker/config.yaml"

// Config holds the worker configuration loaded from the YAML config file.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// ServerURL is the base URL of the rotation server
	// (e.g., "https://rotation.example.com"). Required for all operations.
	ServerURL string `koanf:"server_url" yaml:"server_url"`

	// EnrollToken is the one-time token used during initial registration.
	// Required for first-time registration, then can be removed.
	EnrollToken string `koanf:"enroll_token" yaml:"enroll_token"`

	// APIKey is the persistent authentication key received after registration.
	// This is set by the worker after successful registration and saved to config.
	APIKey string `koanf:"api_key" yaml:"api_key"`

	// WorkerID is the unique identifier assigned by the server during
	// registration, saved back to config alongside the API key.
	WorkerID string `koanf:"worker_id" yaml:"worker_id"`

	// TenantID is the tenant identifier for multi-tenant isolation.
	// Set during registration and used for NATS subject routing.
	TenantID string `koanf:"tenant_id" yaml:"tenant_id"`

	// DataDir is where the worker keeps its local bbolt database.
	// Default: /var/lib/rotation-worker.
	DataDir string `koanf:"data_dir" yaml:"data_dir"`

	// MediaCacheDir is the scratch directory for downloaded media.
	// Default: DataDir/media.
	MediaCacheDir string `koanf:"media_cache_dir" yaml:"media_cache_dir"`

	// TickIntervalSeconds is how often the scheduler evaluates due schedules.
	// Default: 60 seconds. Values above 60 risk skipping cron minutes.
	TickIntervalSeconds int `koanf:"tick_interval_seconds" yaml:"tick_interval_seconds"`

	// WarmupSeconds delays the first tick after startup so the sync
	// transports can populate the local store. Default: 5 seconds.
	WarmupSeconds int `koanf:"warmup_seconds" yaml:"warmup_seconds"`

	// DispatchTimeoutSeconds bounds each platform API call.
	// Default: 30 seconds.
	DispatchTimeoutSeconds int `koanf:"dispatch_timeout_seconds" yaml:"dispatch_timeout_seconds"`

	// HeartbeatIntervalSeconds is how often to report liveness and health.
	// Default: 60 seconds.
	HeartbeatIntervalSeconds int `koanf:"heartbeat_interval_seconds" yaml:"heartbeat_interval_seconds"`

	// LogLevel controls the verbosity of worker logging.
	// Valid values: "debug", "info", "warn", "error".
	// Default: "info".
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// NATSServers is a comma-separated list of NATS server URLs.
	// If set, NATS is used for real-time sync instead of WebSocket.
	NATSServers string `koanf:"nats_servers" yaml:"nats_servers"`

	// NATSNKeySeed is the NKey seed for NATS authentication.
	// Set during registration when NATS is enabled on the server.
	NATSNKeySeed string `koanf:"nats_nkey_seed" yaml:"nats_nkey_seed"`
}

// Validation errors returned by Load when required fields are missing.
var (
	ErrServerURLRequired    = errors.New("server_url is required")
	ErrNoCredentials        = errors.New("either enroll_token (for registration) or api_key (for operation) is required")
	ErrInvalidTickInterval  = errors.New("tick_interval_seconds must be positive")
	ErrInvalidDispatchLimit = errors.New("dispatch_timeout_seconds must be positive")
)

// Load reads configuration from the specified YAML file path.
// It applies defaults for optional fields and validates required fields.
// Returns an error if the file cannot be read or required fields are missing.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "/var/lib/rotation-worker"
	}
	if c.MediaCacheDir == "" {
		c.MediaCacheDir = filepath.Join(c.DataDir, "media")
	}
	if c.TickIntervalSeconds == 0 {
		c.TickIntervalSeconds = 60
	}
	if c.WarmupSeconds == 0 {
		c.WarmupSeconds = 5
	}
	if c.DispatchTimeoutSeconds == 0 {
		c.DispatchTimeoutSeconds = 30
	}
	if c.HeartbeatIntervalSeconds == 0 {
		c.HeartbeatIntervalSeconds = 60
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// validate checks that required configuration fields are present and valid.
func (c *Config) validate() error {
	if c.ServerURL == "" {
		return ErrServerURLRequired
	}
	// Must have either enroll_token (for registration) or api_key (for operation)
	if c.EnrollToken == "" && c.APIKey == "" {
		return ErrNoCredentials
	}
	if c.TickIntervalSeconds <= 0 {
		return ErrInvalidTickInterval
	}
	if c.DispatchTimeoutSeconds <= 0 {
		return ErrInvalidDispatchLimit
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// The file is created with 0600 permissions (owner read/write only)
// as it contains sensitive credentials like the API key.
//
// This is typically called after registration to persist the received API key
// and NATS credentials.
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Restricted permissions; the file contains secrets.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}

// IsRegistered returns true if the worker has an API key (indicating
// successful registration).
func (c *Config) IsRegistered() bool {
	return c.APIKey != ""
}

// NeedsRegistration returns true if the worker has an enrollment token but no
// API key, indicating it needs to complete registration.
func (c *Config) NeedsRegistration() bool {
	return c.EnrollToken != "" && c.APIKey == ""
}

// NATSEnabled returns true if NATS configuration is present.
func (c *Config) NATSEnabled() bool {
	return c.NATSServers != "" && c.NATSNKeySeed != "" && c.TenantID != ""
}

// TickInterval returns the scheduler tick interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// Warmup returns the startup warmup delay as a duration.
func (c *Config) Warmup() time.Duration {
	return time.Duration(c.WarmupSeconds) * time.Second
}

// DispatchTimeout returns the per-platform call timeout as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the heartbeat interval as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}
