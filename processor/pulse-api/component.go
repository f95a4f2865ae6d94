// Package pulseapi provides the public ecosystem stats and the weekly KPI
// snapshot ("pulse") endpoints.
package pulseapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/config"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/storage"
)

// Component implements the pulse-api component.
type Component struct {
	component.Lifecycle

	name    string
	config  Config
	award   int
	store   *storage.Store
	issuer  *auth.Issuer
	metrics *metric.Metrics
	logger  *slog.Logger
}

// NewComponent constructs a pulse-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("pulse-api requires a store and a token issuer")
	}

	award := config.DefaultSnapshotAward
	if deps.Config != nil {
		award = deps.Config.Karma.Award()
	}

	return &Component{
		name:    "pulse-api",
		config:  cfg,
		award:   award,
		store:   deps.Store,
		issuer:  deps.Issuer,
		metrics: deps.Metrics,
		logger:  deps.GetLogger(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized pulse-api", "snapshot_award", c.award)
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if err := c.Begin(ctx, nil); err != nil {
		return err
	}
	c.logger.Info("pulse-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.End()
	if stopped {
		c.logger.Info("pulse-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "pulse-api",
		Type:        "processor",
		Description: "HTTP endpoints for ecosystem stats and weekly KPI snapshots",
		Version:     "0.1.0",
	}
}
