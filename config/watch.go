package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file at path whenever it changes and passes the
// merged result (defaults + file + environment) to onChange. Only settings
// that can be applied to a running process should be read from the
// reloaded config. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	return NewLoader(logger).Watch(ctx, path, onChange)
}

// Watch is like the package-level Watch, with this loader's environment
// overrides applied to every reloaded config.
func (l *Loader) Watch(ctx context.Context, path string, onChange func(*Config)) error {
	logger := l.logger

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors commonly replace files via rename.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			loaded, err := LoadFromFile(abs)
			if err != nil {
				logger.Warn("Config reload failed", "path", abs, "error", err)
				continue
			}
			cfg := DefaultConfig()
			cfg.Merge(loaded)
			l.applyEnv(cfg)
			if err := cfg.Validate(); err != nil {
				logger.Warn("Reloaded config is invalid", "path", abs, "error", err)
				continue
			}
			logger.Info("Config reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", "error", err)
		}
	}
}
