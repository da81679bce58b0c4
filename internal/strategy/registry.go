package strategy

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Factory constructs a fresh strategy instance for a symbol with the given
// parameter overrides. Every backtest and optimizer trial gets its own
// instance.
type Factory func(symbol string, overrides Params) (Strategy, error)

// NotFoundError is a configuration error: no strategy is registered under
// the requested name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("strategy not found: %s", e.Name)
}

// Registry holds a named collection of strategy factories for lookup and
// enumeration. It is an explicit object owned by the composition root;
// registration happens once at startup, not via import side effects.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given name. Re-registering the same
// factory under the same name is idempotent; registering a different factory
// under an existing name is an error.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.factories[name]; ok {
		if reflect.ValueOf(existing).Pointer() == reflect.ValueOf(f).Pointer() {
			return nil
		}
		return fmt.Errorf("strategy %q already registered with a different implementation", name)
	}
	r.factories[name] = f
	return nil
}

// Get retrieves the factory registered under name, or a NotFoundError.
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return f, nil
}

// New looks up the named factory and constructs a strategy instance.
func (r *Registry) New(name, symbol string, overrides Params) (Strategy, error) {
	f, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return f(symbol, overrides)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the full name → factory mapping.
func (r *Registry) All() map[string]Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Factory, len(r.factories))
	for name, f := range r.factories {
		out[name] = f
	}
	return out
}
