// Package technique holds the catalog of obfuscation techniques and resolves
// a caller's technique request against it.
//
// A Registry is built once and never mutated. Lookups are case-insensitive.
// Resolve checks the whole request before anything executes, so an unknown
// id or a domain mismatch aborts the run with no partial side effects.
package technique

import (
	"fmt"
	"strings"
)

// Registry is an immutable technique catalog.
type Registry struct {
	order []Spec
	byID  map[string]int
}

// NewRegistry builds a registry from specs. The slice order becomes the
// canonical order used to expand "all".
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		order: make([]Spec, 0, len(specs)),
		byID:  make(map[string]int, len(specs)),
	}
	for _, s := range specs {
		id := normalize(s.ID)
		if id == "" || id == All {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTechnique, s.ID)
		}
		if _, exists := r.byID[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSpec, id)
		}
		s.ID = id
		s = s.clone()
		r.byID[id] = len(r.order)
		r.order = append(r.order, s)
	}
	return r, nil
}

// Default returns a registry of the builtin techniques.
func Default() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(fmt.Sprintf("builtin technique catalog: %v", err))
	}
	return r
}

// Lookup returns the spec registered under id.
func (r *Registry) Lookup(id string) (Spec, bool) {
	i, ok := r.byID[normalize(id)]
	if !ok {
		return Spec{}, false
	}
	return r.order[i].clone(), true
}

// All returns every spec in canonical order.
func (r *Registry) All() []Spec {
	specs := make([]Spec, len(r.order))
	for i, s := range r.order {
		specs[i] = s.clone()
	}
	return specs
}

// ForDomain returns the specs of domain in canonical order.
func (r *Registry) ForDomain(domain Domain) []Spec {
	var specs []Spec
	for _, s := range r.order {
		if s.Domain == domain {
			specs = append(specs, s.clone())
		}
	}
	return specs
}

// Resolve turns a technique request into the ordered specs to execute.
//
// "all" anywhere in the request expands to every technique of domain in
// canonical order, ignoring the rest of the request. Otherwise ids are
// resolved in the order given. Blank entries are ignored.
func (r *Registry) Resolve(requested []string, domain Domain) ([]Spec, error) {
	ids := make([]string, 0, len(requested))
	for _, raw := range requested {
		if id := normalize(raw); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoTechniques
	}

	for _, id := range ids {
		if id == All {
			specs := r.ForDomain(domain)
			if len(specs) == 0 {
				return nil, fmt.Errorf("%w: no techniques for %s", ErrNoTechniques, domain)
			}
			return specs, nil
		}
	}

	seen := make(map[string]bool, len(ids))
	specs := make([]Spec, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTechnique, id)
		}
		seen[id] = true

		s, ok := r.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTechnique, id)
		}
		if s.Domain != domain {
			return nil, fmt.Errorf("%w: %s targets %s scripts, input is %s",
				ErrDomainMismatch, id, s.Domain, domain)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// ParseList splits the comma-separated command-line form of a request.
func ParseList(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := normalize(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// IDs returns the ids of specs in order.
func IDs(specs []Spec) []string {
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	return ids
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
