package eklt

import (
	"math"

	"github.com/banshee-data/evtrack/internal/monitoring"
)

// OutOfOrderTolerance is how far, in seconds, an event may lag the most
// current time before a warning is logged. Late events are still processed.
const OutOfOrderTolerance = 1e-6

// DroppedNoticeEvery rate-limits the "events dropped" notice emitted while
// no image has been received.
const DroppedNoticeEvery = 20

// AsyncFeatureTracker is the public face of the engine. It owns the image
// buffer and the scheduler state; patches belong to the bound Collaborator.
//
// AsyncFeatureTracker is not safe for concurrent use.
type AsyncFeatureTracker struct {
	params Params
	camera Camera

	interp Interpolator
	collab Collaborator
	seeder *MaskedSeeder

	images        *ImageBuffer
	current       ImageEntry
	gotFirstImage bool

	// mostCurrentTime is the largest event or first-image timestamp seen.
	mostCurrentTime float64

	sched   schedulerState
	dropped *monitoring.EveryN

	// flushTimes holds the trigger time of each list returned by the
	// last ProcessEvents call.
	flushTimes []float64
}

// NewAsyncFeatureTracker builds a tracker. The engine never interprets
// camera; collaborators read it through Camera(). Bind must be called
// before the first ProcessImage.
func NewAsyncFeatureTracker(camera Camera, params Params, interp Interpolator) *AsyncFeatureTracker {
	if interp == nil {
		panic("eklt: nil interpolator")
	}
	interp.SetParams(params)
	return &AsyncFeatureTracker{
		params:          params,
		camera:          camera,
		interp:          interp,
		seeder:          NewMaskedSeeder(params),
		images:          NewImageBuffer(),
		mostCurrentTime: -1,
		sched:           newSchedulerState(params),
		dropped:         monitoring.NewEveryN(DroppedNoticeEvery),
	}
}

// Bind attaches the collaborator that owns and updates the patches.
func (t *AsyncFeatureTracker) Bind(c Collaborator) {
	t.collab = c
}

// SetParams replaces the configuration, propagates it to the seeder and
// the interpolator, and resets the scheduler if the strategy or its
// period changed.
func (t *AsyncFeatureTracker) SetParams(params Params) {
	t.params = params
	t.seeder.SetParams(params)
	t.interp.SetParams(params)
	t.sched = t.sched.reconfigure(params)
}

// Params returns the active configuration.
func (t *AsyncFeatureTracker) Params() Params { return t.params }

// Camera returns the camera the tracker was built with.
func (t *AsyncFeatureTracker) Camera() Camera { return t.camera }

// ProcessImage buffers img. The first image becomes current immediately,
// sets the most current time and triggers the collaborator's OnInit.
func (t *AsyncFeatureTracker) ProcessImage(timestamp float64, img *Image) {
	if t.collab == nil {
		panic("eklt: ProcessImage called before Bind")
	}

	if t.gotFirstImage && timestamp <= t.current.Timestamp {
		Opsf("Dropping image at t=%.9f: not newer than current image at t=%.9f", timestamp, t.current.Timestamp)
		return
	}
	if t.gotFirstImage {
		// Keep at most one pending image ahead of the current one.
		if pending, ok := t.images.Newest(); ok && pending.Timestamp > t.current.Timestamp {
			Diagf("Replacing pending image t=%.9f with t=%.9f before it became current", pending.Timestamp, timestamp)
			t.images.Remove(pending.Timestamp)
		}
	}
	t.images.Insert(timestamp, img)

	if !t.gotFirstImage {
		Diagf("Found first image at t=%.9f", timestamp)
		t.current, _ = t.images.FirstAtOrBefore(timestamp)
		t.mostCurrentTime = timestamp
		t.gotFirstImage = true
		t.collab.OnInit(t.current)
	}
}

// ProcessEvents runs every event of batch through the engine and returns
// one MatchList per flush, in order. Before the first image the batch is
// dropped and the result is empty.
func (t *AsyncFeatureTracker) ProcessEvents(batch EventBatch) []MatchList {
	var lists []MatchList
	t.flushTimes = t.flushTimes[:0]

	if !t.gotFirstImage {
		if t.dropped.Allow() {
			Opsf("Events dropped since no image present.")
		}
		return lists
	}

	tracing := traceEnabled()
	for _, ev := range batch {
		t.advanceTime(ev.Timestamp)

		changed := false
		for _, p := range t.collab.ActivePatches() {
			if t.collab.UpdatePatch(p, ev) {
				changed = true
			}
		}

		t.handOff()

		var flush bool
		t.sched, flush = t.sched.onEvent(ev.Timestamp, changed)
		if flush {
			lists = append(lists, t.flush(ev.Timestamp))
			if tracing {
				traceFlush(ev.Timestamp, t.sched.strategy, lists[len(lists)-1])
			}
		}

		t.collab.OnPostEvent()
	}

	var flush bool
	t.sched, flush = t.sched.onBatchEnd()
	if flush {
		lists = append(lists, t.flush(t.mostCurrentTime))
		if tracing {
			traceFlush(t.mostCurrentTime, t.sched.strategy, lists[len(lists)-1])
		}
	}
	return lists
}

// FlushTimes returns, for each MatchList returned by the last
// ProcessEvents call, the timestamp of the event that triggered it. An
// end-of-batch flush is stamped with the cursor after the batch.
func (t *AsyncFeatureTracker) FlushTimes() []float64 {
	out := make([]float64, len(t.flushTimes))
	copy(out, t.flushTimes)
	return out
}

// ExtractFeatures seeds up to n features on the current image, masked
// against the active patches and the image border.
func (t *AsyncFeatureTracker) ExtractFeatures(n int) []Point2D {
	if !t.current.Valid() {
		return nil
	}
	var patches []AsyncPatch
	if t.collab != nil {
		patches = t.collab.ActivePatches()
	}
	return t.seeder.Extract(t.current.Image, patches, n)
}

// CurrentImage returns the image events are currently tracked against.
func (t *AsyncFeatureTracker) CurrentImage() (ImageEntry, bool) {
	return t.current, t.gotFirstImage
}

// HasImage reports whether any image has been received.
func (t *AsyncFeatureTracker) HasImage() bool { return t.gotFirstImage }

// MostCurrentTime returns the event-time cursor, or -1 before the first image.
func (t *AsyncFeatureTracker) MostCurrentTime() float64 { return t.mostCurrentTime }

// BufferedImages returns the number of images held in the buffer.
func (t *AsyncFeatureTracker) BufferedImages() int { return t.images.Len() }

// BufferedTimestamps returns the buffered image timestamps, oldest first.
func (t *AsyncFeatureTracker) BufferedTimestamps() []float64 { return t.images.Timestamps() }

// Close releases the tracker's memory monitor registration.
func (t *AsyncFeatureTracker) Close() {
	t.images.Close()
}

func (t *AsyncFeatureTracker) advanceTime(ts float64) {
	if ts >= t.mostCurrentTime {
		t.mostCurrentTime = ts
		return
	}
	if math.Abs(ts-t.mostCurrentTime) > OutOfOrderTolerance {
		Opsf("Processing event behind most current time: %.9f < %.9f. Events might not be in order!", ts, t.mostCurrentTime)
	}
}

// handOff makes the newest image at or before the cursor current. The
// collaborator is notified before the superseded image is evicted.
func (t *AsyncFeatureTracker) handOff() bool {
	next, ok := t.images.FirstAtOrBefore(t.mostCurrentTime)
	if !ok || next.Timestamp == t.current.Timestamp {
		return false
	}
	previous := t.current
	t.current = next
	t.collab.OnNewImage(next)

	if !t.images.Remove(previous.Timestamp) {
		Opsf("Superseded image at t=%.9f was not buffered", previous.Timestamp)
	}
	// Anything older than the new current image can never be selected again.
	if n := t.images.RemoveBefore(next.Timestamp); n > 0 {
		Diagf("Evicted %d stale images older than t=%.9f", n, next.Timestamp)
	}
	return true
}

func (t *AsyncFeatureTracker) flush(ts float64) MatchList {
	t.flushTimes = append(t.flushTimes, ts)
	return t.interp.MatchListFromPatches(t.collab.ActivePatches())
}

func traceFlush(ts float64, strategy UpdateStrategy, ml MatchList) {
	Tracef("flush at t=%.9f (%v): %d matches", ts, strategy, len(ml))
	for _, m := range ml {
		Tracef("  %v", m)
	}
}
