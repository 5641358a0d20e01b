package deebot

import (
	"sort"
	"sync"
)

// Registry maps entry IDs to their live hubs. It is created by the
// process owner and handed to the Integration; entries add and remove
// themselves through it during setup and unload.
//
// All methods are thread-safe.
type Registry struct {
	mu   sync.RWMutex
	hubs map[string]Hub
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hubs: make(map[string]Hub)}
}

// Put stores h under entryID, replacing any previous hub.
func (r *Registry) Put(entryID string, h Hub) {
	r.mu.Lock()
	r.hubs[entryID] = h
	r.mu.Unlock()
}

// Get returns the hub for entryID.
func (r *Registry) Get(entryID string) (Hub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hubs[entryID]
	return h, ok
}

// Remove deletes entryID and returns the hub it held.
func (r *Registry) Remove(entryID string) (Hub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[entryID]
	delete(r.hubs, entryID)
	return h, ok
}

// Len returns the number of registered hubs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hubs)
}

// IDs returns the registered entry IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.hubs))
	for id := range r.hubs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
