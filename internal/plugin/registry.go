package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

// Descriptor is what the registry knows about one action identifier.
type Descriptor struct {
	ID          string
	Capability  models.Capability
	Description string
}

type entry struct {
	Descriptor
	workflow  func() WorkflowAction
	edition   func() EditionAction
	catalogue func() CatalogueHook
	decoder   func() NewswireDecoder
}

// Registry maps stable action identifiers to factories. Each identifier
// belongs to exactly one capability.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]entry{}}
}

func (r *Registry) RegisterWorkflowAction(id, description string, factory func() WorkflowAction) error {
	return r.add(entry{Descriptor: Descriptor{id, models.CapabilityWorkflowAction, description}, workflow: factory})
}

func (r *Registry) RegisterEditionAction(id, description string, factory func() EditionAction) error {
	return r.add(entry{Descriptor: Descriptor{id, models.CapabilityEditionAction, description}, edition: factory})
}

func (r *Registry) RegisterCatalogueHook(id, description string, factory func() CatalogueHook) error {
	return r.add(entry{Descriptor: Descriptor{id, models.CapabilityCatalogueHook, description}, catalogue: factory})
}

func (r *Registry) RegisterNewswireDecoder(id, description string, factory func() NewswireDecoder) error {
	return r.add(entry{Descriptor: Descriptor{id, models.CapabilityNewswireDecoder, description}, decoder: factory})
}

func (r *Registry) add(e entry) error {
	if e.ID == "" {
		return fmt.Errorf("plugin action id is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[e.ID]; ok {
		return fmt.Errorf("plugin action %q already registered as %s", e.ID, existing.Capability)
	}
	r.entries[e.ID] = e
	return nil
}

// Lookup returns the descriptor of a registered identifier.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.Descriptor, ok
}

// List returns all registered actions ordered by identifier.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) get(id string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}
