package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "sangam.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/sangam"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables that override file configuration.
const (
	EnvHTTPAddr     = "SANGAM_HTTP_ADDR"
	EnvDatabasePath = "SANGAM_DATABASE_PATH"
	EnvNATSURL      = "SANGAM_NATS_URL"
	EnvJWTSecret    = "SANGAM_JWT_SECRET"
	EnvLogLevel     = "SANGAM_LOG_LEVEL"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	getenv func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, getenv: os.Getenv}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/sangam/config.yaml)
// 3. Project config (sangam.yaml in current or parent directories)
// 4. Explicit config file (if path is non-empty)
// 5. Environment variables
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if path != "" {
		explicit, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config file", slog.String("path", path))
		config.Merge(explicit)
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Auth.JWTSecret == DevSecret {
		l.logger.Warn("Using development JWT secret; set " + EnvJWTSecret + " in production")
	}

	return config, nil
}

// applyEnv overlays environment variable overrides.
func (l *Loader) applyEnv(config *Config) {
	if v := l.getenv(EnvHTTPAddr); v != "" {
		config.Server.Addr = v
	}
	if v := l.getenv(EnvDatabasePath); v != "" {
		config.Database.Path = v
	}
	if v := l.getenv(EnvNATSURL); v != "" {
		config.NATS.URL = v
		config.NATS.Embedded = false
	}
	if v := l.getenv(EnvJWTSecret); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := l.getenv(EnvLogLevel); v != "" {
		config.Log.Level = v
	}
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for sangam.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
