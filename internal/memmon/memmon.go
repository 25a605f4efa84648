// Package memmon is a process-wide registry of components that report
// their approximate memory footprint. It is a debugging aid only; nothing
// in the tracking pipeline depends on it for correctness.
//
// Components register at construction and deregister when they are
// closed. Every Register must be matched by exactly one Deregister.
package memmon

import (
	"sync"

	"github.com/google/uuid"
)

// Reporter reports an approximate byte usage.
type Reporter interface {
	MemoryUsageBytes() int
}

// Monitor sums the byte usage of all registered reporters.
type Monitor struct {
	mu        sync.RWMutex
	reporters map[uuid.UUID]Reporter
}

var (
	instance     *Monitor
	instanceOnce sync.Once
)

// Instance returns the process-wide Monitor, creating it on first use.
func Instance() *Monitor {
	instanceOnce.Do(func() {
		instance = New()
	})
	return instance
}

// New returns an empty, independent Monitor. Production code should use
// Instance; New exists so tests can avoid sharing global state.
func New() *Monitor {
	return &Monitor{reporters: make(map[uuid.UUID]Reporter)}
}

// Registration is the handle returned by Register.
type Registration struct {
	ID uuid.UUID

	monitor *Monitor
	once    sync.Once
}

// Register adds r to the monitor and returns its handle.
func (m *Monitor) Register(r Reporter) *Registration {
	reg := &Registration{ID: uuid.New(), monitor: m}
	m.mu.Lock()
	m.reporters[reg.ID] = r
	m.mu.Unlock()
	return reg
}

// Deregister removes the reporter. Calls after the first are no-ops and
// return false. A nil Registration is accepted.
func (r *Registration) Deregister() bool {
	if r == nil {
		return false
	}
	removed := false
	r.once.Do(func() {
		r.monitor.mu.Lock()
		defer r.monitor.mu.Unlock()
		if _, ok := r.monitor.reporters[r.ID]; ok {
			delete(r.monitor.reporters, r.ID)
			removed = true
		}
	})
	return removed
}

// TotalBytes sums MemoryUsageBytes across the registered reporters.
func (m *Monitor) TotalBytes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, r := range m.reporters {
		total += r.MemoryUsageBytes()
	}
	return total
}

// Len returns the number of registered reporters.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reporters)
}

// Register adds r to the process-wide monitor.
func Register(r Reporter) *Registration {
	return Instance().Register(r)
}

// TotalBytes returns the process-wide total.
func TotalBytes() int {
	return Instance().TotalBytes()
}
