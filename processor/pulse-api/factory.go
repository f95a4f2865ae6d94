package pulseapi

import (
	"fmt"

	"github.com/c360studio/sangam/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the pulse-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "pulse-api",
		Factory:     NewComponent,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "sangam",
		Description: "HTTP endpoints for ecosystem stats and weekly KPI snapshots",
		Version:     "0.1.0",
		Prefix:      "api/core",
	})
}
