// Package patches is a reference collaborator for the eklt engine: a
// simple event-centroid patch tracker and an interpolator that reports
// patch displacement since the last flush.
//
// It exists to drive the engine end to end from the CLI and in tests. It
// is not a photometric tracker.
package patches

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/evtrack/internal/eklt"
)

// Patch is a square window that follows the centroid of the events
// falling inside it.
type Patch struct {
	id     string
	center eklt.Point2D
	half   float64

	// flushed is the observation last handed to the estimator.
	flushed    eklt.Feature
	lastUpdate float64

	xs, ys []float64
	lost   bool
}

// NewPatch returns a patch centred on pt, seeded at time ts. half is the
// half-width of its event window in pixels.
func NewPatch(pt eklt.Point2D, ts float64, half int) *Patch {
	return &Patch{
		id:         uuid.NewString(),
		center:     pt,
		half:       float64(half),
		flushed:    eklt.Feature{Timestamp: ts, X: pt.X, Y: pt.Y},
		lastUpdate: ts,
	}
}

// ID returns the patch's unique identifier.
func (p *Patch) ID() string { return p.id }

// Center returns the current center.
func (p *Patch) Center() eklt.Point2D { return p.center }

// Lost reports whether the patch drifted out of the trackable area.
func (p *Patch) Lost() bool { return p.lost }

// Current returns the latest observation of the patch.
func (p *Patch) Current() eklt.Feature {
	return eklt.Feature{Timestamp: p.lastUpdate, X: p.center.X, Y: p.center.Y}
}

// Flushed returns the observation last reported in a match.
func (p *Patch) Flushed() eklt.Feature { return p.flushed }

// Contains reports whether (x, y) falls inside the patch window.
func (p *Patch) Contains(x, y float64) bool {
	dx, dy := x-p.center.X, y-p.center.Y
	return dx >= -p.half && dx <= p.half && dy >= -p.half && dy <= p.half
}

// addEvent records ev. Once window events have accumulated the center
// jumps to their centroid and the window restarts. It reports whether the
// center moved.
func (p *Patch) addEvent(ev eklt.Event, window int) bool {
	p.xs = append(p.xs, float64(ev.X))
	p.ys = append(p.ys, float64(ev.Y))
	if len(p.xs) < window {
		return false
	}

	n := float64(len(p.xs))
	next := eklt.Point2D{X: floats.Sum(p.xs) / n, Y: floats.Sum(p.ys) / n}
	p.xs = p.xs[:0]
	p.ys = p.ys[:0]
	p.lastUpdate = ev.Timestamp
	if next == p.center {
		return false
	}
	p.center = next
	return true
}

// pendingEvents returns how many events sit in the current window.
func (p *Patch) pendingEvents() int { return len(p.xs) }
