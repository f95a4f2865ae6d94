package marketplaceapi

import "fmt"

// Config holds configuration for the marketplace-api component.
type Config struct {
	// MaxNotesLength bounds the free-text notes on a booking.
	MaxNotesLength int `json:"max_notes_length"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{MaxNotesLength: 2000}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.MaxNotesLength <= 0 {
		return fmt.Errorf("max_notes_length must be positive")
	}
	return nil
}
