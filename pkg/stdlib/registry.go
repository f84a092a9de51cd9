// Package stdlib provides the livecalc capability set: the math functions and
// constants a sheet can reach.
package stdlib

import (
	"sort"
	"strings"

	"github.com/thomasrohde/livecalc/pkg/evaluator"
)

// AliasPrefix may be put in front of any registry name: math.sqrt is sqrt.
const AliasPrefix = "math."

// Entry is a named value in the registry with a one-line description.
type Entry struct {
	Name  string
	Doc   string
	Value evaluator.Value
}

// Signature renders the entry for help output, e.g. "pow(x, y)".
func (e *Entry) Signature() string {
	b, ok := e.Value.(*evaluator.Builtin)
	if !ok {
		return e.Name
	}
	var params []string
	for i := 0; i < b.MinArgs; i++ {
		params = append(params, paramName(i))
	}
	switch {
	case b.MaxArgs == evaluator.Variadic:
		params = append(params, "...")
	case b.MaxArgs > b.MinArgs:
		for i := b.MinArgs; i < b.MaxArgs; i++ {
			params = append(params, "["+paramName(i)+"]")
		}
	}
	return e.Name + "(" + strings.Join(params, ", ") + ")"
}

func paramName(i int) string {
	return string(rune('x' + i%3))
}

// Registry holds the capability set. It implements evaluator.Scope and is
// never mutated by evaluation.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Default returns a registry holding every default builtin and constant.
func Default() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// Register adds a builtin function to the registry.
func (r *Registry) Register(b *evaluator.Builtin, doc string) {
	r.entries[b.Name] = &Entry{Name: b.Name, Doc: doc, Value: b}
}

// Constant adds a named number to the registry.
func (r *Registry) Constant(name string, v float64, doc string) {
	r.entries[name] = &Entry{Name: name, Doc: doc, Value: evaluator.NewNumber(v)}
}

// Get retrieves an entry by name, honoring the math. alias.
func (r *Registry) Get(name string) *Entry {
	if e, ok := r.entries[name]; ok {
		return e
	}
	return r.entries[strings.TrimPrefix(name, AliasPrefix)]
}

// Lookup implements evaluator.Scope.
func (r *Registry) Lookup(name string) (evaluator.Value, bool) {
	e := r.Get(name)
	if e == nil {
		return nil, false
	}
	return e.Value, true
}

// Names implements evaluator.Scope; it returns the sorted entry names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.entries))
	for _, n := range r.Names() {
		out = append(out, r.entries[n])
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Filter returns a new registry holding only the entries keep accepts.
func (r *Registry) Filter(keep func(name string) bool) *Registry {
	out := NewRegistry()
	for n, e := range r.entries {
		if keep(n) {
			out.entries[n] = e
		}
	}
	return out
}
