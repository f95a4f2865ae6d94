package pulsereminder

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

// Config holds configuration for the pulse-reminder component.
type Config struct {
	// Schedule is a standard 5-field cron expression or descriptor such as
	// "@weekly". Empty falls back to pulse.reminder_schedule in the
	// application config; if that is empty too, reminders are disabled.
	Schedule string `json:"schedule"`

	// Timezone names the location the schedule is evaluated in.
	Timezone string `json:"timezone"`

	// RunOnStart sends a round of reminders as soon as the component starts.
	RunOnStart bool `json:"run_on_start"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{Timezone: "Asia/Kathmandu"}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone, defaulting to UTC when it is empty.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
