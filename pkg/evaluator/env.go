package evaluator

import "sort"

// Scope is a read-only layer of names beneath an Env's own bindings.
type Scope interface {
	Lookup(name string) (Value, bool)
	Names() []string
}

// MapScope is a Scope over a fixed map.
type MapScope map[string]Value

// Lookup implements Scope.
func (m MapScope) Lookup(name string) (Value, bool) {
	v, ok := m[name]
	return v, ok
}

// Names implements Scope.
func (m MapScope) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Binding is a single name/value pair held by an Env.
type Binding struct {
	Name  string
	Value Value
}

// Env is a document's variable store: mutable bindings layered over
// read-only scopes. Lookups consult the bindings first, then each layer in
// order. Set only ever writes the bindings, so layers are never mutated.
//
// An Env is not safe for concurrent use; callers serialize access.
type Env struct {
	bindings map[string]Value
	layers   []Scope
}

// NewEnv creates an environment with the given read-only layers.
func NewEnv(layers ...Scope) *Env {
	return &Env{
		bindings: make(map[string]Value),
		layers:   layers,
	}
}

// Get looks up a name in the bindings, then in each layer.
func (e *Env) Get(name string) (Value, bool) {
	if val, ok := e.bindings[name]; ok {
		return val, true
	}
	for _, l := range e.layers {
		if val, ok := l.Lookup(name); ok {
			return val, true
		}
	}
	return nil, false
}

// Set binds a name in the mutable layer, replacing any previous binding.
func (e *Env) Set(name string, val Value) {
	e.bindings[name] = val
}

// Has reports whether name resolves anywhere in the environment.
func (e *Env) Has(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// IsBound reports whether name is bound in the mutable layer.
func (e *Env) IsBound(name string) bool {
	_, ok := e.bindings[name]
	return ok
}

// Len returns the number of mutable bindings.
func (e *Env) Len() int {
	return len(e.bindings)
}

// Bindings returns a snapshot of the mutable bindings sorted by name.
func (e *Env) Bindings() []Binding {
	out := make([]Binding, 0, len(e.bindings))
	for k, v := range e.bindings {
		out = append(out, Binding{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Builtins returns the sorted, de-duplicated names exposed by all layers.
func (e *Env) Builtins() []string {
	seen := make(map[string]bool)
	var names []string
	for _, l := range e.layers {
		for _, n := range l.Names() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}
