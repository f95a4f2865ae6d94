package pulsereminder

import (
	"fmt"

	"github.com/c360studio/sangam/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the pulse-reminder component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "pulse-reminder",
		Factory:     NewComponent,
		Type:        "processor",
		Protocol:    "cron",
		Domain:      "sangam",
		Description: "Reminds founders who missed their weekly KPI pulse",
		Version:     "0.1.0",
	})
}
