package chatapi

import (
	"fmt"
	"strings"
)

// Config holds configuration for the chat-api component.
type Config struct {
	// WebSocketPrefix is the mount point for chat sockets, served at
	// /<prefix>/chat/{receiver_id}/.
	WebSocketPrefix string `json:"websocket_prefix"`

	// MaxMessageLength bounds a single chat message after sanitising.
	MaxMessageLength int `json:"max_message_length"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		WebSocketPrefix:  "ws",
		MaxMessageLength: 4000,
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if strings.Trim(c.WebSocketPrefix, "/") == "" {
		return fmt.Errorf("websocket_prefix is required")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("max_message_length must be positive")
	}
	return nil
}
