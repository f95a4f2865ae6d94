package notificationapi

import (
	"fmt"
	"strings"
)

// Config holds configuration for the notification-api component.
type Config struct {
	// WebSocketPrefix is the mount point for the live feed, served at
	// /<prefix>/notifications/.
	WebSocketPrefix string `json:"websocket_prefix"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{WebSocketPrefix: "ws"}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if strings.Trim(c.WebSocketPrefix, "/") == "" {
		return fmt.Errorf("websocket_prefix is required")
	}
	return nil
}
