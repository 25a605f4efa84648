package eklt

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

type fakePatch struct {
	id     string
	center Point2D
}

func (p *fakePatch) ID() string      { return p.id }
func (p *fakePatch) Center() Point2D { return p.center }

// fakeCollaborator records hook calls. changed decides, per event index
// (counted across the collaborator's lifetime), whether the update
// reports a change.
type fakeCollaborator struct {
	patches []AsyncPatch
	changed func(i int, ev Event) bool

	events     int
	postEvents int
	inits      []ImageEntry
	newImages  []ImageEntry
	onNewImage func(ImageEntry)
}

func newFakeCollaborator(n int) *fakeCollaborator {
	c := &fakeCollaborator{}
	for i := 0; i < n; i++ {
		c.patches = append(c.patches, &fakePatch{id: fmt.Sprintf("p%d", i), center: Point2D{X: float64(10 * i), Y: 5}})
	}
	return c
}

func (c *fakeCollaborator) ActivePatches() []AsyncPatch { return c.patches }

func (c *fakeCollaborator) UpdatePatch(p AsyncPatch, ev Event) bool {
	// Only the first patch decides, so "changed" is evaluated once per event.
	if p != c.patches[0] {
		return false
	}
	i := c.events
	c.events++
	return c.changed != nil && c.changed(i, ev)
}

func (c *fakeCollaborator) OnInit(first ImageEntry) { c.inits = append(c.inits, first) }

func (c *fakeCollaborator) OnNewImage(entry ImageEntry) {
	c.newImages = append(c.newImages, entry)
	if c.onNewImage != nil {
		c.onNewImage(entry)
	}
}

func (c *fakeCollaborator) OnPostEvent() { c.postEvents++ }

// fakeInterpolator returns one match per patch and records, for every
// flush, how many post-event hooks had run when it was called.
type fakeInterpolator struct {
	params      Params
	setCalls    int
	collab      *fakeCollaborator
	flushPostAt []int
}

func (f *fakeInterpolator) SetParams(p Params) {
	f.params = p
	f.setCalls++
}

func (f *fakeInterpolator) MatchListFromPatches(patches []AsyncPatch) MatchList {
	if f.collab != nil {
		f.flushPostAt = append(f.flushPostAt, f.collab.postEvents)
	}
	out := make(MatchList, 0, len(patches))
	for _, p := range patches {
		c := p.Center()
		out = append(out, Match{PatchID: p.ID(), Previous: Feature{X: c.X, Y: c.Y}, Current: Feature{X: c.X, Y: c.Y}})
	}
	return out
}

func testParams(strategy UpdateStrategy, everyN int) Params {
	p := DefaultParams()
	p.UpdateStrategy = strategy
	p.UpdateEveryN = everyN
	return p
}

func newTestTracker(t *testing.T, p Params, patches int) (*AsyncFeatureTracker, *fakeCollaborator, *fakeInterpolator) {
	t.Helper()
	collab := newFakeCollaborator(patches)
	interp := &fakeInterpolator{collab: collab}
	tr := NewAsyncFeatureTracker(Camera{Width: p.ImageWidth, Height: p.ImageHeight}, p, interp)
	tr.Bind(collab)
	t.Cleanup(tr.Close)
	return tr, collab, interp
}

// events returns n events starting at t0 spaced dt seconds apart.
func events(t0, dt float64, n int) EventBatch {
	batch := make(EventBatch, n)
	for i := range batch {
		batch[i] = Event{Timestamp: t0 + float64(i)*dt, X: 10, Y: 10, Polarity: i%2 == 0}
	}
	return batch
}

// captureOps redirects the ops stream for the duration of the test.
func captureOps(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetLogWriters(LogWriters{Ops: &buf})
	t.Cleanup(func() { SetLogWriters(LogWriters{}) })
	return &buf
}

func countLines(buf *bytes.Buffer, substr string) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}
