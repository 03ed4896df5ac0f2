package stage

import (
	"fmt"
	"os"

	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

// Set maps technique ids to adapters.
type Set map[string]Adapter

// Get returns the adapter for id.
func (s Set) Get(id string) (Adapter, error) {
	a, ok := s[id]
	if !ok || a == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, id)
	}
	return a, nil
}

// FromRegistry builds a Process adapter for every technique in r, with
// engine scripts under dir.
func FromRegistry(r *technique.Registry, dir string, engines config.EnginesConfig) Set {
	set := make(Set)
	for _, spec := range r.All() {
		set[spec.ID] = NewProcess(spec, dir, engines.Overrides[spec.ID])
	}
	return set
}

// Availability reports whether a technique's engine is installed.
type Availability struct {
	ID        string
	Name      string
	Engine    string
	Available bool
}

// Check reports the engine availability of every technique in r.
func Check(r *technique.Registry, dir string, engines config.EnginesConfig) []Availability {
	specs := r.All()
	report := make([]Availability, 0, len(specs))
	for _, spec := range specs {
		p := NewProcess(spec, dir, engines.Overrides[spec.ID])
		_, err := os.Stat(p.Engine)
		report = append(report, Availability{
			ID:        spec.ID,
			Name:      spec.Name,
			Engine:    p.Engine,
			Available: err == nil,
		})
	}
	return report
}
