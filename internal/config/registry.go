package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/attestia/attestia/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.CreateProvider] when no
// factory has been registered under the requested family.
var ErrProviderNotRegistered = errors.New("config: provider family not registered")

// ProviderFactory constructs a model provider from its configuration block.
type ProviderFactory func(ProviderConfig) (llm.Provider, error)

// Registry maps provider families to their constructor functions. The main
// package registers one factory per supported family at startup; the wiring
// code then instantiates whatever the config file declares. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// RegisterProvider registers a provider factory under family. Subsequent
// calls with the same family overwrite the previous registration.
func (r *Registry) RegisterProvider(family string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[family] = factory
}

// CreateProvider instantiates a provider using the factory registered under
// entry.Family. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that family.
func (r *Registry) CreateProvider(entry ProviderConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Family]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Family)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create provider %q (family %q): %w", entry.Name, entry.Family, err)
	}
	return p, nil
}

// Families returns the registered family names, for diagnostics.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for f := range r.factories {
		out = append(out, f)
	}
	return out
}
