package pulseapi

import (
	"fmt"

	"github.com/c360studio/sangam/storage"
)

// Config holds configuration for the pulse-api component.
type Config struct {
	// HotspotBaseline is the baseline activity per province, in province
	// order. Registered members in a province add to its baseline.
	HotspotBaseline []int `json:"hotspot_baseline"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		HotspotBaseline: []int{12, 8, 45, 22, 15, 5, 10},
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if len(c.HotspotBaseline) != len(storage.Provinces) {
		return fmt.Errorf("hotspot_baseline needs %d entries, got %d", len(storage.Provinces), len(c.HotspotBaseline))
	}
	for i, v := range c.HotspotBaseline {
		if v < 0 {
			return fmt.Errorf("hotspot_baseline[%d] must not be negative", i)
		}
	}
	return nil
}
