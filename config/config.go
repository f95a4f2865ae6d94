// Package config provides configuration loading and management for Sangam.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Sangam configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Karma    KarmaConfig    `yaml:"karma"`
	Pulse    PulseConfig    `yaml:"pulse"`
	Log      LogConfig      `yaml:"log"`

	// Components overrides per-component settings, keyed by component name
	Components map[string]ComponentConfig `yaml:"components"`
}

// ComponentConfig configures one registered component
type ComponentConfig struct {
	// Disabled skips the component entirely
	Disabled bool `yaml:"disabled"`
	// Config is passed to the component factory as JSON
	Config map[string]any `yaml:"config"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: :8000)
	Addr string `yaml:"addr"`
	// MaxConnections caps concurrently accepted connections (0 = unlimited)
	MaxConnections int `yaml:"max_connections"`
	// AllowedOrigins lists CORS origins; entries may be glob patterns
	AllowedOrigins []string `yaml:"allowed_origins"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the relational store
type DatabaseConfig struct {
	// Path is the SQLite database file
	Path string `yaml:"path"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// AuthConfig configures token issuance
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens (HS256)
	JWTSecret string `yaml:"jwt_secret"`
	// AccessTTL is the access token lifetime
	AccessTTL time.Duration `yaml:"access_ttl"`
	// RefreshTTL is the refresh token lifetime
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

// KarmaConfig configures point awards
type KarmaConfig struct {
	// SnapshotAward is granted when a founder logs a weekly KPI snapshot.
	// Nil means unset; an explicit 0 turns the award off.
	SnapshotAward *int `yaml:"snapshot_award"`
}

// Award returns the configured snapshot award, or DefaultSnapshotAward
// when it is unset.
func (k KarmaConfig) Award() int {
	if k.SnapshotAward == nil {
		return DefaultSnapshotAward
	}
	return *k.SnapshotAward
}

// PulseConfig configures the weekly pulse reminder
type PulseConfig struct {
	// ReminderSchedule is a standard 5-field cron expression. Nil means
	// unset; an explicit empty string disables reminders.
	ReminderSchedule *string `yaml:"reminder_schedule"`
}

// Schedule returns the reminder schedule, empty when unset or disabled.
func (p PulseConfig) Schedule() string {
	if p.ReminderSchedule == nil {
		return ""
	}
	return *p.ReminderSchedule
}

// LogConfig configures logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// DevSecret is the signing secret used when none is configured.
const DevSecret = "sangam-dev-secret-change-me-before-production"

// MinJWTSecretLength is the shortest secret HS256 signing accepts.
const MinJWTSecretLength = 32

// Defaults for the presence-aware settings.
const (
	DefaultSnapshotAward    = 10
	DefaultReminderSchedule = "0 9 * * MON"
)

func ptr[T any](v T) *T { return &v }

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			MaxConnections:  0,
			AllowedOrigins:  []string{"http://localhost:*", "http://127.0.0.1:*"},
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "sangam.db",
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Auth: AuthConfig{
			JWTSecret:  DevSecret,
			AccessTTL:  60 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Karma: KarmaConfig{
			SnapshotAward: ptr(DefaultSnapshotAward),
		},
		Pulse: PulseConfig{
			ReminderSchedule: ptr(DefaultReminderSchedule),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.embedded is false")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("auth token lifetimes must be positive")
	}
	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		return fmt.Errorf("auth.refresh_ttl must not be shorter than auth.access_ttl")
	}
	if c.Karma.Award() < 0 {
		return fmt.Errorf("karma.snapshot_award must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal([]byte(ExpandEnvWithDefaults(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values, and for pointer fields that are set at all)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.MaxConnections != 0 {
		c.Server.MaxConnections = other.Server.MaxConnections
	}
	if len(other.Server.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = other.Server.AllowedOrigins
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	// Database
	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	// Auth
	if other.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = other.Auth.JWTSecret
	}
	if other.Auth.AccessTTL != 0 {
		c.Auth.AccessTTL = other.Auth.AccessTTL
	}
	if other.Auth.RefreshTTL != 0 {
		c.Auth.RefreshTTL = other.Auth.RefreshTTL
	}

	// Karma
	if other.Karma.SnapshotAward != nil {
		c.Karma.SnapshotAward = ptr(*other.Karma.SnapshotAward)
	}

	// Pulse
	if other.Pulse.ReminderSchedule != nil {
		c.Pulse.ReminderSchedule = ptr(*other.Pulse.ReminderSchedule)
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}

	// Components
	for name, comp := range other.Components {
		if c.Components == nil {
			c.Components = make(map[string]ComponentConfig)
		}
		c.Components[name] = comp
	}
}
