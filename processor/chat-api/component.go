// Package chatapi provides direct messaging between members: conversation
// history, read receipts and a WebSocket room per pair of users.
package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/storage"
)

// Component implements the chat-api component.
type Component struct {
	component.Lifecycle

	name     string
	config   Config
	store    *storage.Store
	issuer   *auth.Issuer
	hub      *realtime.Hub
	notifier *realtime.Notifier
	metrics  *metric.Metrics
	upgrader *websocket.Upgrader
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// NewComponent constructs a chat-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil || deps.Issuer == nil || deps.Hub == nil {
		return nil, fmt.Errorf("chat-api requires a store, a token issuer and a hub")
	}

	logger := deps.GetLogger()
	return &Component{
		name:     "chat-api",
		config:   config,
		store:    deps.Store,
		issuer:   deps.Issuer,
		hub:      deps.Hub,
		notifier: realtime.NewNotifier(deps.Hub, deps.Metrics, logger),
		metrics:  deps.Metrics,
		upgrader: realtime.Upgrader(deps.CheckOrigin),
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized chat-api", "websocket_prefix", c.config.WebSocketPrefix)
	return nil
}

// Start begins serving the component. Open sockets are closed when the
// component stops.
func (c *Component) Start(ctx context.Context) error {
	if err := c.Begin(ctx, nil); err != nil {
		return err
	}
	c.logger.Info("chat-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.End()
	if stopped {
		c.logger.Info("chat-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "chat-api",
		Type:        "processor",
		Description: "Direct messaging history and real-time chat rooms",
		Version:     "0.1.0",
	}
}
