package eklt

// AsyncPatch is the capability the engine needs from a tracked patch.
// Concrete patches carry their own mutable tracking state; the engine only
// reads the centre and hands the patch back to its Collaborator.
type AsyncPatch interface {
	ID() string
	Center() Point2D
}

// Collaborator owns the patches and implements the per-patch tracking.
// The engine calls it from ProcessImage and ProcessEvents only, on the
// caller's goroutine.
type Collaborator interface {
	// ActivePatches returns the patches to update, mask and flush.
	ActivePatches() []AsyncPatch

	// UpdatePatch folds ev into p and reports whether p changed.
	UpdatePatch(p AsyncPatch, ev Event) bool

	// OnInit is called once with the first image ever received.
	OnInit(first ImageEntry)

	// OnNewImage is called when entry becomes the current image. The
	// superseded image is still buffered while this runs.
	OnNewImage(entry ImageEntry)

	// OnPostEvent is called once after every event.
	OnPostEvent()
}

// Interpolator turns the active patch set into a MatchList.
type Interpolator interface {
	MatchListFromPatches(patches []AsyncPatch) MatchList
	SetParams(p Params)
}

