package trialapi

import "fmt"

// Config holds configuration for the trial-api component.
type Config struct {
	// MaxMessageLength bounds the note attached to a trial proposal.
	MaxMessageLength int `json:"max_message_length"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{MaxMessageLength: 1000}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("max_message_length must be positive")
	}
	return nil
}
