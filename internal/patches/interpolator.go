package patches

import (
	"github.com/banshee-data/evtrack/internal/eklt"
)

// Interpolator implements eklt.Interpolator for Patch. Each flush reports
// one match per patch whose center moved since it was last reported, and
// marks the new position as reported.
type Interpolator struct {
	camera eklt.Camera
	params eklt.Params
}

// NewInterpolator returns an Interpolator for the given camera.
func NewInterpolator(camera eklt.Camera) *Interpolator {
	return &Interpolator{camera: camera}
}

// SetParams stores the active tracker params.
func (in *Interpolator) SetParams(p eklt.Params) { in.params = p }

// Params returns the params last set.
func (in *Interpolator) Params() eklt.Params { return in.params }

// MatchListFromPatches builds the match list for one flush. Lost patches
// and patches whose center left the camera frame are skipped.
func (in *Interpolator) MatchListFromPatches(patches []eklt.AsyncPatch) eklt.MatchList {
	var out eklt.MatchList
	for _, ap := range patches {
		p, ok := ap.(*Patch)
		if !ok || p.lost {
			continue
		}
		cur := p.Current()
		if cur.X == p.flushed.X && cur.Y == p.flushed.Y {
			continue
		}
		if !in.camera.Contains(p.center) {
			continue
		}
		out = append(out, eklt.Match{PatchID: p.id, Previous: p.flushed, Current: cur})
		p.flushed = cur
	}
	return out
}
