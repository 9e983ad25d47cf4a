package backend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Deps are the shared collaborators handed to every backend factory.
type Deps struct {
	Log            zerolog.Logger
	MaxConcurrency int
	RequestTimeout time.Duration
	// Transport is the base round tripper for outgoing requests; nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// Factory constructs a backend.
type Factory func(Deps) (Backend, error)

// Registry maps backend names to factories, keeping registration order.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory under name. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("backend %q registered twice", name)
	}
	r.names = append(r.names, name)
	r.factories[name] = f
	return nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Build instantiates the named backends in registration order. A nil names
// slice builds every registered backend.
func (r *Registry) Build(names []string, deps Deps) ([]Backend, error) {
	wanted := map[string]bool{}
	for _, n := range names {
		if _, ok := r.factories[n]; !ok {
			return nil, fmt.Errorf("unknown backend %q", n)
		}
		wanted[n] = true
	}

	var out []Backend
	for _, n := range r.names {
		if names != nil && !wanted[n] {
			continue
		}
		b, err := r.factories[n](deps)
		if err != nil {
			return nil, fmt.Errorf("building backend %s: %w", n, err)
		}
		out = append(out, b)
	}
	return out, nil
}
