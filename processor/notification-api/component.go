// Package notificationapi lists, counts and acknowledges a member's
// notifications and streams new ones over a WebSocket.
package notificationapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/storage"
)

// Component implements the notification-api component.
type Component struct {
	component.Lifecycle

	name     string
	config   Config
	store    *storage.Store
	issuer   *auth.Issuer
	hub      *realtime.Hub
	metrics  *metric.Metrics
	upgrader *websocket.Upgrader
	logger   *slog.Logger
}

// NewComponent constructs a notification-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil || deps.Issuer == nil || deps.Hub == nil {
		return nil, fmt.Errorf("notification-api requires a store, a token issuer and a hub")
	}

	return &Component{
		name:     "notification-api",
		config:   config,
		store:    deps.Store,
		issuer:   deps.Issuer,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		upgrader: realtime.Upgrader(deps.CheckOrigin),
		logger:   deps.GetLogger(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized notification-api", "websocket_prefix", c.config.WebSocketPrefix)
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if err := c.Begin(ctx, nil); err != nil {
		return err
	}
	c.logger.Info("notification-api started")
	return nil
}

// Stop gracefully stops the component. Live feeds are closed.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.End()
	if stopped {
		c.logger.Info("notification-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "notification-api",
		Type:        "processor",
		Description: "In-app notifications and their live WebSocket feed",
		Version:     "0.1.0",
	}
}
