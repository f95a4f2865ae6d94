// Package karmaapi exposes the karma ledger: balances, point history and
// redemption of partner offers.
package karmaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/storage"
)

// Component implements the karma-api component.
type Component struct {
	component.Lifecycle

	name    string
	config  Config
	store   *storage.Store
	issuer  *auth.Issuer
	metrics *metric.Metrics
	logger  *slog.Logger
}

// NewComponent constructs a karma-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("karma-api requires a store and a token issuer")
	}

	return &Component{
		name:    "karma-api",
		config:  config,
		store:   deps.Store,
		issuer:  deps.Issuer,
		metrics: deps.Metrics,
		logger:  deps.GetLogger(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized karma-api", "rank_offers_by_interest", c.config.RankOffersByInterest)
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if err := c.Begin(ctx, nil); err != nil {
		return err
	}
	c.logger.Info("karma-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.End()
	if stopped {
		c.logger.Info("karma-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "karma-api",
		Type:        "processor",
		Description: "Karma balances, point history and partner offer redemption",
		Version:     "0.1.0",
	}
}
