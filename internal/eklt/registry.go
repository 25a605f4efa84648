package eklt

import (
	"unsafe"

	"github.com/banshee-data/evtrack/internal/memmon"
)

// PatchRegistry is an insertion-ordered set of patches keyed by ID.
// Collaborators use it to own their active patches.
type PatchRegistry struct {
	order []AsyncPatch
	index map[string]int
	mem   *memmon.Registration
}

// NewPatchRegistry returns an empty registry registered with the process
// memory monitor. Call Close to deregister it.
func NewPatchRegistry() *PatchRegistry {
	r := &PatchRegistry{index: make(map[string]int)}
	r.mem = memmon.Register(r)
	return r
}

// Add inserts p. It returns false if a patch with the same ID exists.
func (r *PatchRegistry) Add(p AsyncPatch) bool {
	if _, ok := r.index[p.ID()]; ok {
		return false
	}
	r.index[p.ID()] = len(r.order)
	r.order = append(r.order, p)
	return true
}

// Remove deletes the patch with the given ID, preserving the order of the rest.
func (r *PatchRegistry) Remove(id string) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	copy(r.order[i:], r.order[i+1:])
	r.order[len(r.order)-1] = nil
	r.order = r.order[:len(r.order)-1]
	delete(r.index, id)
	for j := i; j < len(r.order); j++ {
		r.index[r.order[j].ID()] = j
	}
	return true
}

// RemoveIf deletes every patch for which drop returns true and returns
// how many were removed.
func (r *PatchRegistry) RemoveIf(drop func(AsyncPatch) bool) int {
	kept := r.order[:0]
	removed := 0
	for _, p := range r.order {
		if drop(p) {
			delete(r.index, p.ID())
			removed++
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(r.order); i++ {
		r.order[i] = nil
	}
	r.order = kept
	for i, p := range r.order {
		r.index[p.ID()] = i
	}
	return removed
}

// Get returns the patch with the given ID.
func (r *PatchRegistry) Get(id string) (AsyncPatch, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.order[i], true
}

// Len returns the number of patches.
func (r *PatchRegistry) Len() int { return len(r.order) }

// Active returns a snapshot of the patches in insertion order.
func (r *PatchRegistry) Active() []AsyncPatch {
	out := make([]AsyncPatch, len(r.order))
	copy(out, r.order)
	return out
}

// Each calls fn for every patch in insertion order. fn must not add or
// remove patches.
func (r *PatchRegistry) Each(fn func(AsyncPatch)) {
	for _, p := range r.order {
		fn(p)
	}
}

// MemoryUsageBytes approximates the registry's own footprint; patch
// internals are accounted by their owners.
func (r *PatchRegistry) MemoryUsageBytes() int {
	var iface AsyncPatch
	perEntry := int(unsafe.Sizeof(iface)) + int(unsafe.Sizeof("")) + int(unsafe.Sizeof(0))
	return cap(r.order)*int(unsafe.Sizeof(iface)) + len(r.index)*perEntry
}

// Close deregisters the registry from the memory monitor.
func (r *PatchRegistry) Close() {
	r.mem.Deregister()
}
