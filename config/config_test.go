package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8000" {
		t.Errorf("expected default addr :8000, got %s", cfg.Server.Addr)
	}
	if cfg.Database.Path != "sangam.db" {
		t.Errorf("expected default database sangam.db, got %s", cfg.Database.Path)
	}
	if !cfg.NATS.Embedded {
		t.Error("expected embedded NATS by default")
	}
	if cfg.Auth.AccessTTL != time.Hour {
		t.Errorf("expected access ttl 1h, got %s", cfg.Auth.AccessTTL)
	}
	if cfg.Karma.Award() != 10 {
		t.Errorf("expected snapshot award 10, got %d", cfg.Karma.Award())
	}
	if cfg.Pulse.Schedule() != "0 9 * * MON" {
		t.Errorf("expected Monday reminder schedule, got %q", cfg.Pulse.Schedule())
	}
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing addr",
			modify:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "external nats without url",
			modify:  func(c *Config) { c.NATS.Embedded = false },
			wantErr: true,
		},
		{
			name:    "short secret",
			modify:  func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErr: true,
		},
		{
			name:    "secret one byte too short for HS256",
			modify:  func(c *Config) { c.Auth.JWTSecret = strings.Repeat("s", MinJWTSecretLength-1) },
			wantErr: true,
		},
		{
			name:    "secret of minimum length",
			modify:  func(c *Config) { c.Auth.JWTSecret = strings.Repeat("s", MinJWTSecretLength) },
			wantErr: false,
		},
		{
			name:    "refresh shorter than access",
			modify:  func(c *Config) { c.Auth.RefreshTTL = time.Minute },
			wantErr: true,
		},
		{
			name:    "negative award",
			modify:  func(c *Config) { c.Karma.SnapshotAward = ptr(-1) },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  addr: ":9000"
  max_connections: 256
database:
  path: "/var/lib/sangam/sangam.db"
auth:
  access_ttl: 15m
karma:
  snapshot_award: 25
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Server.MaxConnections)
	assert.Equal(t, "/var/lib/sangam/sangam.db", cfg.Database.Path)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 25, cfg.Karma.Award())
	assert.Nil(t, cfg.Pulse.ReminderSchedule, "absent keys stay unset")
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unterminated"), 0644))

	_, err := LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.Addr = ":7777"
	require.NoError(t, cfg.SaveToFile(configPath))

	loaded, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, ":7777", loaded.Server.Addr)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	other := &Config{
		NATS:  NATSConfig{URL: "nats://broker:4222"},
		Auth:  AuthConfig{JWTSecret: "a-much-longer-production-secret-value-42"},
		Pulse: PulseConfig{ReminderSchedule: ptr("0 8 * * SUN")},
	}

	base.Merge(other)

	assert.Equal(t, "nats://broker:4222", base.NATS.URL)
	assert.False(t, base.NATS.Embedded, "setting a url should disable embedded NATS")
	assert.Equal(t, "a-much-longer-production-secret-value-42", base.Auth.JWTSecret)
	assert.Equal(t, "0 8 * * SUN", base.Pulse.Schedule())
	assert.Equal(t, 10, base.Karma.Award(), "unset award keeps its default")
	assert.Equal(t, ":8000", base.Server.Addr, "unset fields keep their defaults")

	base.Merge(nil)
	assert.Equal(t, "nats://broker:4222", base.NATS.URL)
}

func TestMergeExplicitZeroDisables(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
karma:
  snapshot_award: 0
pulse:
  reminder_schedule: ""
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	file, err := LoadFromFile(configPath)
	require.NoError(t, err)
	require.NotNil(t, file.Karma.SnapshotAward)
	require.NotNil(t, file.Pulse.ReminderSchedule)

	base := DefaultConfig()
	base.Merge(file)
	assert.Equal(t, 0, base.Karma.Award())
	assert.Equal(t, "", base.Pulse.Schedule())
	require.NoError(t, base.Validate())

	// The merged value is a copy, so later edits to the layer don't leak.
	*file.Karma.SnapshotAward = 99
	assert.Equal(t, 0, base.Karma.Award())
}

func TestLoaderEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	env := map[string]string{
		EnvHTTPAddr:     ":8123",
		EnvDatabasePath: "env.db",
		EnvNATSURL:      "nats://env:4222",
		EnvJWTSecret:    "environment-provided-secret-for-tests",
		EnvLogLevel:     "debug",
	}
	l := NewLoader(nil)
	l.getenv = func(k string) string { return env[k] }

	cfg, err := l.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8123", cfg.Server.Addr)
	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.False(t, cfg.NATS.Embedded)
	assert.Equal(t, "environment-provided-secret-for-tests", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoaderProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigFile), []byte("database:\n  path: project.db\n"), 0644))

	t.Chdir(nested)
	t.Setenv("HOME", t.TempDir())

	l := NewLoader(nil)
	l.getenv = func(string) string { return "" }

	cfg, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, "project.db", cfg.Database.Path)
}

func TestLoaderExplicitFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	l := NewLoader(nil)
	l.getenv = func(string) string { return "" }

	_, err := l.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sangam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644))

	// A single write can surface as several events (truncate, then write).
	timeout := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case cfg := <-changes:
			reloaded = cfg.Log.Level == "debug"
		case <-timeout:
			t.Fatal("timed out waiting for config reload")
		}
	}

	cancel()
	require.NoError(t, <-done)
}

func TestExpandEnvWithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		env      map[string]string
		expected string
	}{
		{
			name:     "default used when var unset",
			input:    `${SANGAM_TEST_DB:-/var/lib/sangam.db}`,
			expected: `/var/lib/sangam.db`,
		},
		{
			name:     "env value used when set",
			input:    `${SANGAM_TEST_DB:-/var/lib/sangam.db}`,
			env:      map[string]string{"SANGAM_TEST_DB": "/tmp/x.db"},
			expected: `/tmp/x.db`,
		},
		{
			name:     "multiple vars with defaults",
			input:    `nats://${SANGAM_TEST_HOST:-localhost}:${SANGAM_TEST_PORT:-4222}`,
			expected: `nats://localhost:4222`,
		},
		{
			name:     "plain var without default",
			input:    `secret: $SANGAM_TEST_SECRET`,
			env:      map[string]string{"SANGAM_TEST_SECRET": "abc"},
			expected: `secret: abc`,
		},
		{
			name:     "unset var without default is empty",
			input:    `[${SANGAM_TEST_MISSING}]`,
			expected: `[]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, ExpandEnvWithDefaults(tt.input))
		})
	}
}

func TestLoadFromFileExpandsEnv(t *testing.T) {
	t.Setenv("SANGAM_TEST_ADDR", ":9100")
	path := filepath.Join(t.TempDir(), "sangam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ${SANGAM_TEST_ADDR:-:8000}
database:
  path: ${SANGAM_TEST_UNSET:-data/sangam.db}
components:
  pulse-reminder:
    config:
      schedule: "0 8 * * SUN"
  trial-api:
    disabled: true
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, "data/sangam.db", cfg.Database.Path)

	merged := DefaultConfig()
	merged.Merge(cfg)
	require.Contains(t, merged.Components, "pulse-reminder")
	assert.Equal(t, "0 8 * * SUN", merged.Components["pulse-reminder"].Config["schedule"])
	assert.True(t, merged.Components["trial-api"].Disabled)
}

func TestWatchKeepsEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sangam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLoader(nil)
	l.getenv = func(k string) string {
		if k == EnvLogLevel {
			return "warn"
		}
		return ""
	}

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- l.Watch(ctx, path, func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\nserver:\n  addr: \":9100\"\n"), 0644))

	timeout := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case cfg := <-changes:
			if cfg.Server.Addr != ":9100" {
				continue
			}
			reloaded = true
			assert.Equal(t, "warn", cfg.Log.Level, "environment still wins after a reload")
		case <-timeout:
			t.Fatal("timed out waiting for config reload")
		}
	}

	cancel()
	require.NoError(t, <-done)
}
