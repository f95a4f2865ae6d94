package notificationapi

import (
	"fmt"

	"github.com/c360studio/sangam/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the notification-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "notification-api",
		Factory:     NewComponent,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "sangam",
		Description: "In-app notifications and their live WebSocket feed",
		Version:     "0.1.0",
		Prefix:      "api/core",
	})
}
