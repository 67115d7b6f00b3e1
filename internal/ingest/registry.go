package ingest

import (
	"fmt"
	"sort"
	"strings"
)

// Factory constructs a source from its open configuration mapping.
type Factory func(config map[string]any) DataSource

// Registry maps lower-cased source names to factories. It is an explicit
// instance handed to the pipeline (not package-global state) so tests can
// register fixtures without leaking across each other.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register derives the registry key by instantiating the source with an
// empty configuration and asking for its name. Factories whose sources
// report no name are rejected.
func (r *Registry) Register(factory Factory) error {
	probe := factory(map[string]any{})
	if probe == nil {
		return fmt.Errorf("factory returned nil source")
	}
	name := strings.ToLower(strings.TrimSpace(probe.Name()))
	if name == "" {
		return fmt.Errorf("source %T reports an empty name", probe)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates the named source with the given configuration.
// Lookups are case-insensitive.
func (r *Registry) Create(name string, config map[string]any) (DataSource, bool) {
	factory, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return factory(config), true
}

// List returns the registered source names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the built-in sources registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Registration cannot fail for the built-ins: each reports a fixed name.
	_ = r.Register(func(config map[string]any) DataSource { return NewGrantsGovCSVSource(config) })
	_ = r.Register(func(config map[string]any) DataSource { return NewGrantsGovXMLSource(config) })
	_ = r.Register(func(config map[string]any) DataSource { return NewGrantsGovExtractSource(config) })
	return r
}
