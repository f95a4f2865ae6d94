package component

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// RegistrationConfig describes a component factory.
type RegistrationConfig struct {
	Name        string
	Factory     Factory
	Type        string
	Protocol    string
	Domain      string
	Description string
	Version     string
	// Prefix is the URL prefix HTTP components mount under.
	Prefix string
}

// Registry holds component factories by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]RegistrationConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]RegistrationConfig)}
}

// RegisterWithConfig adds a factory. Names must be unique.
func (r *Registry) RegisterWithConfig(cfg RegistrationConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("component name is required")
	}
	if cfg.Factory == nil {
		return fmt.Errorf("component %s: factory is required", cfg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[cfg.Name]; exists {
		return fmt.Errorf("component %s already registered", cfg.Name)
	}
	r.factories[cfg.Name] = cfg
	return nil
}

// ListFactories returns registrations sorted by name.
func (r *Registry) ListFactories() []RegistrationConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegistrationConfig, 0, len(r.factories))
	for _, cfg := range r.factories {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Create builds the named component.
func (r *Registry) Create(name string, rawConfig json.RawMessage, deps Dependencies) (Discoverable, error) {
	r.mu.RLock()
	cfg, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown component: %s", name)
	}
	if len(rawConfig) == 0 {
		rawConfig = json.RawMessage("{}")
	}
	c, err := cfg.Factory(rawConfig, deps)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return c, nil
}
