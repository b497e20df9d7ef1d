package entity

import "sync"

// Registry holds all compiled entities for a process. Entities register at
// declaration time, typically from package init functions, and are never
// pruned afterward; there is no hot reload.
type Registry struct {
	entities map[string]*Entity
	order    []string
	mu       sync.RWMutex
}

// DefaultRegistry is the process-wide registry that Register and
// MustRegister populate.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
	}
}

// Register compiles a definition and adds it to the registry. Compilation
// runs fully before the registry changes, so a failed registration leaves
// it untouched.
func (r *Registry) Register(def Definition) (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[def.Name]; exists {
		return nil, defErrorf(def.Name, "entity is already registered")
	}

	var parent *Entity
	if def.Parent != "" {
		p, ok := r.entities[def.Parent]
		if !ok {
			return nil, defErrorf(def.Name, "parent entity %q is not registered", def.Parent)
		}
		parent = p
	}

	e, err := compileDefinition(def, parent)
	if err != nil {
		return nil, err
	}

	r.entities[e.Name] = e
	r.order = append(r.order, e.Name)
	return e, nil
}

// MustRegister registers a definition and panics on any definition error.
// Intended for package init functions, where a panic aborts the process
// before it can start serving.
func (r *Registry) MustRegister(def Definition) *Entity {
	e, err := r.Register(def)
	if err != nil {
		panic(err)
	}
	return e
}

// Lookup retrieves a compiled entity by name
func (r *Registry) Lookup(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entities[name]
	return e, exists
}

// Entities returns all compiled entities in registration order
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// Names returns all entity names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entities)
}

// Exists checks whether an entity is registered
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.entities[name]
	return exists
}

// Clear removes all registered entities (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity)
	r.order = nil
}

// Register compiles and registers a definition on the default registry
func Register(def Definition) (*Entity, error) {
	return DefaultRegistry.Register(def)
}

// MustRegister registers on the default registry, panicking on definition
// errors
func MustRegister(def Definition) *Entity {
	return DefaultRegistry.MustRegister(def)
}
