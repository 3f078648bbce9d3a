package flow

import (
	"sort"
	"sync"
)

// Registry owns the flows of one session, keyed by flow id. Map access is
// locked; mutating a single flow from several goroutines still needs
// external serialization.
type Registry struct {
	ctrl Controller

	mu    sync.RWMutex
	flows map[int]*Flow
}

// NewRegistry creates a registry whose flows emit commands to ctrl.
func NewRegistry(ctrl Controller) *Registry {
	return &Registry{ctrl: ctrl, flows: make(map[int]*Flow)}
}

// Add attaches f under its id. A flow already registered under that id is
// stopped and detached first; the registry never merges two flows.
func (r *Registry) Add(f *Flow) error {
	f.mu.Lock()
	prev := f.registry
	f.mu.Unlock()
	if prev != nil && prev != r {
		prev.Remove(f)
	}

	id := f.ID()
	r.mu.Lock()
	old := r.flows[id]
	r.flows[id] = f
	r.mu.Unlock()

	var err error
	if old != nil && old != f {
		err = old.detach(r)
	}
	f.mu.Lock()
	f.registry = r
	f.mu.Unlock()
	return err
}

// Remove stops f if it is running and detaches it. Removing a flow that is not
// registered is not an error.
func (r *Registry) Remove(f *Flow) error {
	id := f.ID()
	r.mu.Lock()
	if cur, ok := r.flows[id]; ok && cur == f {
		delete(r.flows, id)
	}
	r.mu.Unlock()
	return f.detach(r)
}

// Get returns the flow registered under id.
func (r *Registry) Get(id int) (*Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[id]
	return f, ok
}

// Len returns the number of registered flows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}

// Flows returns the registered flows ordered by id.
func (r *Registry) Flows() []*Flow {
	r.mu.RLock()
	ids := make([]int, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*Flow, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.flows[id])
	}
	r.mu.RUnlock()
	return out
}

// detach stops the flow and clears its back-reference if it belongs to r.
func (f *Flow) detach(r *Registry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registry != r {
		return nil
	}
	err := f.stopLocked()
	f.registry = nil
	return err
}
