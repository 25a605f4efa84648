package patches

import (
	"github.com/banshee-data/evtrack/internal/eklt"
)

// Manager owns the active patches and implements eklt.Collaborator.
type Manager struct {
	tr       *eklt.AsyncFeatureTracker
	registry *eklt.PatchRegistry

	// frame size of the current image, for the border test
	width, height int

	seeded int
	lost   int
}

// Attach creates a Manager and binds it to tr.
func Attach(tr *eklt.AsyncFeatureTracker) *Manager {
	m := &Manager{tr: tr, registry: eklt.NewPatchRegistry()}
	tr.Bind(m)
	return m
}

// ActivePatches returns a snapshot of the active patches.
func (m *Manager) ActivePatches() []eklt.AsyncPatch {
	return m.registry.Active()
}

// UpdatePatch feeds ev to ap if it falls inside the patch window.
func (m *Manager) UpdatePatch(ap eklt.AsyncPatch, ev eklt.Event) bool {
	p, ok := ap.(*Patch)
	if !ok || p.lost {
		return false
	}
	if !p.Contains(float64(ev.X), float64(ev.Y)) {
		return false
	}

	params := m.tr.Params()
	if !p.addEvent(ev, params.PatchUpdateEvents) {
		return false
	}
	if !m.insideBorder(p.center, params.HalfPatch()) {
		p.lost = true
		eklt.Tracef("patch %s lost at (%.2f,%.2f) t=%.9f", p.id, p.center.X, p.center.Y, ev.Timestamp)
	}
	return true
}

// OnInit seeds the first set of patches.
func (m *Manager) OnInit(first eklt.ImageEntry) {
	m.setFrame(first)
	m.replenish(first.Timestamp)
}

// OnNewImage tops the patch set back up on the new current image.
func (m *Manager) OnNewImage(entry eklt.ImageEntry) {
	m.setFrame(entry)
	m.replenish(entry.Timestamp)
}

// OnPostEvent prunes lost patches.
func (m *Manager) OnPostEvent() {
	if n := m.registry.RemoveIf(func(ap eklt.AsyncPatch) bool {
		p, ok := ap.(*Patch)
		return ok && p.lost
	}); n > 0 {
		m.lost += n
	}
}

// Len returns the number of active patches.
func (m *Manager) Len() int { return m.registry.Len() }

// Seeded returns how many patches have been created.
func (m *Manager) Seeded() int { return m.seeded }

// Lost returns how many patches have been pruned.
func (m *Manager) Lost() int { return m.lost }

// Close releases the patch registry.
func (m *Manager) Close() {
	m.registry.Close()
}

func (m *Manager) setFrame(e eklt.ImageEntry) {
	if e.Valid() {
		m.width, m.height = e.Image.Width(), e.Image.Height()
	}
}

func (m *Manager) insideBorder(c eklt.Point2D, half int) bool {
	hp := float64(half)
	return c.X >= hp && c.Y >= hp &&
		c.X <= float64(m.width-1)-hp && c.Y <= float64(m.height-1)-hp
}

func (m *Manager) replenish(ts float64) {
	params := m.tr.Params()
	want := params.NumPatches - m.registry.Len()
	if want <= 0 {
		return
	}
	pts := m.tr.ExtractFeatures(want)
	for _, pt := range pts {
		if m.registry.Add(NewPatch(pt, ts, params.HalfPatch())) {
			m.seeded++
		}
	}
	eklt.Diagf("Seeded %d of %d requested patches at t=%.9f (%d active)", len(pts), want, ts, m.registry.Len())
}
