// Package capabilities decides which builtins a document may call.
package capabilities

import (
	"fmt"
	"sort"
	"strings"
)

// Policy filters the capability set by name. Deny overrides allow; an empty
// allow list allows everything not denied.
type Policy struct {
	allow map[string]bool
	deny  map[string]bool
}

// NewPolicy builds a policy from allow and deny lists. Names may carry the
// math. prefix.
func NewPolicy(allow, deny []string) *Policy {
	p := &Policy{allow: make(map[string]bool), deny: make(map[string]bool)}
	for _, n := range allow {
		p.allow[normalize(n)] = true
	}
	for _, n := range deny {
		p.deny[normalize(n)] = true
	}
	return p
}

// AllowAll returns a policy that permits every builtin.
func AllowAll() *Policy {
	return NewPolicy(nil, nil)
}

func normalize(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "math.")
}

// IsAllowed reports whether name may be exposed to documents.
func (p *Policy) IsAllowed(name string) bool {
	if p == nil {
		return true
	}
	name = normalize(name)
	if p.deny[name] {
		return false
	}
	return len(p.allow) == 0 || p.allow[name]
}

// Validate reports names in either list that are not in known.
func (p *Policy) Validate(known []string) error {
	if p == nil {
		return nil
	}
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	var unknown []string
	for _, m := range []map[string]bool{p.allow, p.deny} {
		for n := range m {
			if !set[n] {
				unknown = append(unknown, n)
			}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown builtin(s) in policy: %s", strings.Join(unknown, ", "))
}
