// Package usersapi provides the member HTTP endpoints: registration, token
// issuance, the profile of the signed-in user, role-specific profiles and
// Jodi co-founder discovery.
package usersapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/storage"
)

// Component implements the users-api component.
type Component struct {
	component.Lifecycle

	name     string
	config   Config
	store    *storage.Store
	issuer   *auth.Issuer
	sessions *auth.SessionStore
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

// NewComponent constructs a users-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("users-api requires a store and a token issuer")
	}

	return &Component{
		name:     "users-api",
		config:   config,
		store:    deps.Store,
		issuer:   deps.Issuer,
		sessions: deps.Sessions,
		policy:   bluemonday.StrictPolicy(),
		logger:   deps.GetLogger(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized users-api", "session_tracking", c.sessions != nil)
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if err := c.Begin(ctx, nil); err != nil {
		return err
	}
	c.logger.Info("users-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.End()
	if stopped {
		c.logger.Info("users-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "users-api",
		Type:        "processor",
		Description: "HTTP endpoints for registration, authentication, profiles and discovery",
		Version:     "0.1.0",
	}
}
