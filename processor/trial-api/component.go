// Package trialapi lets members propose two-week trial collaborations to
// each other and answer them.
package trialapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/storage"
)

// Component implements the trial-api component.
type Component struct {
	component.Lifecycle

	name     string
	config   Config
	store    *storage.Store
	issuer   *auth.Issuer
	notifier *realtime.Notifier
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// NewComponent constructs a trial-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("trial-api requires a store and a token issuer")
	}

	logger := deps.GetLogger()
	return &Component{
		name:     "trial-api",
		config:   config,
		store:    deps.Store,
		issuer:   deps.Issuer,
		notifier: realtime.NewNotifier(deps.Hub, deps.Metrics, logger),
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized trial-api")
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if err := c.Begin(ctx, nil); err != nil {
		return err
	}
	c.logger.Info("trial-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.End()
	if stopped {
		c.logger.Info("trial-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "trial-api",
		Type:        "processor",
		Description: "Trial collaboration proposals between members",
		Version:     "0.1.0",
	}
}
