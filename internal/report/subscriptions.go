package report

import (
	"sort"
	"sync"
)

// Subscriptions holds the accepted bindings of every VEN, keyed by report specifier.
// A new negotiation for the same specifier replaces the previous bindings.
type Subscriptions struct {
	mu    sync.RWMutex
	byVen map[string]map[string][]Binding
}

// NewSubscriptions creates an empty set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{byVen: make(map[string]map[string][]Binding)}
}

// Replace sets the bindings of a report specifier. Empty bindings remove it.
func (s *Subscriptions) Replace(venID, specifierID string, bindings []Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	specs := s.byVen[venID]
	if specs == nil {
		specs = make(map[string][]Binding)
		s.byVen[venID] = specs
	}
	if len(bindings) == 0 {
		delete(specs, specifierID)
		return
	}
	specs[specifierID] = append([]Binding(nil), bindings...)
}

// Find returns the binding of an r_id. An empty specifierID searches all specifiers of the VEN.
func (s *Subscriptions) Find(venID, specifierID, rID string) (Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	specs := s.byVen[venID]
	if specifierID != "" {
		for _, b := range specs[specifierID] {
			if b.RID == rID {
				return b, true
			}
		}
		return Binding{}, false
	}

	for _, id := range sortedKeys(specs) {
		for _, b := range specs[id] {
			if b.RID == rID {
				return b, true
			}
		}
	}
	return Binding{}, false
}

// List returns all bindings of a VEN ordered by specifier.
func (s *Subscriptions) List(venID string) []Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	specs := s.byVen[venID]
	var out []Binding
	for _, id := range sortedKeys(specs) {
		out = append(out, specs[id]...)
	}
	return out
}

// Drop removes every binding of a VEN, when its registration is cancelled.
func (s *Subscriptions) Drop(venID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byVen, venID)
}

func sortedKeys(m map[string][]Binding) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
