package chatapi

import (
	"fmt"

	"github.com/c360studio/sangam/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the chat-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "chat-api",
		Factory:     NewComponent,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "sangam",
		Description: "Direct messaging history and real-time chat rooms",
		Version:     "0.1.0",
		Prefix:      "api/core",
	})
}
