package usersapi

import "fmt"

// Config holds configuration for the users-api component.
type Config struct {
	// DiscoveryLimit caps how many founders one discovery query returns.
	DiscoveryLimit int `json:"discovery_limit"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{DiscoveryLimit: 100}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.DiscoveryLimit <= 0 {
		return fmt.Errorf("discovery_limit must be positive")
	}
	return nil
}
