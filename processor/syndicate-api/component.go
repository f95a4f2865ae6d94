// Package syndicateapi provides the syndicate endpoints: listing funding
// rounds, creating them, committing capital and rendering the
// Smart-Statute PDF.
package syndicateapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/storage"
)

// Component implements the syndicate-api component.
type Component struct {
	component.Lifecycle

	name     string
	config   Config
	store    *storage.Store
	issuer   *auth.Issuer
	notifier *realtime.Notifier
	metrics  *metric.Metrics
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// NewComponent constructs a syndicate-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("syndicate-api requires a store and a token issuer")
	}

	logger := deps.GetLogger()
	return &Component{
		name:     "syndicate-api",
		config:   config,
		store:    deps.Store,
		issuer:   deps.Issuer,
		notifier: realtime.NewNotifier(deps.Hub, deps.Metrics, logger),
		metrics:  deps.Metrics,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized syndicate-api", "statute_terms", len(c.config.StatuteTerms))
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if err := c.Begin(ctx, nil); err != nil {
		return err
	}
	c.logger.Info("syndicate-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.End()
	if stopped {
		c.logger.Info("syndicate-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "syndicate-api",
		Type:        "processor",
		Description: "HTTP endpoints for syndicates, investments and Smart-Statute PDFs",
		Version:     "0.1.0",
	}
}
