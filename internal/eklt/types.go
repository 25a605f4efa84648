// Package eklt implements the asynchronous feature-tracking engine that
// fuses a low-rate image stream with a high-rate event-camera stream.
//
// The engine keeps a small time-ordered image buffer, drives per-event
// patch updates through an external Collaborator, seeds new features on
// a masked Harris response, and decides under a configurable strategy
// when to hand a MatchList to the downstream estimator.
//
// The engine is single-threaded: ProcessImage and ProcessEvents must be
// serialised by the caller.
package eklt

import (
	"fmt"
	"image"
)

// Point2D is a sub-pixel image location.
type Point2D struct {
	X float64
	Y float64
}

// Event is a single brightness-change notification from an event camera.
type Event struct {
	Timestamp float64 // seconds
	X         uint16
	Y         uint16
	Polarity  bool
}

// EventBatch is the arrival unit for ProcessEvents. Events are nominally
// ordered by timestamp.
type EventBatch []Event

// Image is a grayscale frame with its tile layout. Only the single-tile
// layout (1x1) is supported.
type Image struct {
	*image.Gray
	TilesH int
	TilesW int
}

// NewImage returns a black single-tile image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		Gray:   image.NewGray(image.Rect(0, 0, width, height)),
		TilesH: 1,
		TilesW: 1,
	}
}

// FromGray wraps g as a single-tile image.
func FromGray(g *image.Gray) *Image {
	return &Image{Gray: g, TilesH: 1, TilesW: 1}
}

// Width returns the image width in pixels.
func (img *Image) Width() int { return img.Rect.Dx() }

// Height returns the image height in pixels.
func (img *Image) Height() int { return img.Rect.Dy() }

// singleTile reports whether the tile layout is exactly 1x1.
func (img *Image) singleTile() bool {
	return img.TilesH == 1 && img.TilesW == 1
}

// ImageEntry is a buffered image together with its timestamp.
type ImageEntry struct {
	Timestamp float64
	Image     *Image
}

// Valid reports whether the entry refers to an image.
func (e ImageEntry) Valid() bool { return e.Image != nil }

// Feature is an image observation of a tracked patch at a point in time.
type Feature struct {
	Timestamp float64
	X         float64
	Y         float64
}

// Match is a feature correspondence between two observations of the same patch.
type Match struct {
	PatchID  string
	Previous Feature
	Current  Feature
}

func (m Match) String() string {
	return fmt.Sprintf("%s (%.2f,%.2f)@%.6f -> (%.2f,%.2f)@%.6f", m.PatchID,
		m.Previous.X, m.Previous.Y, m.Previous.Timestamp,
		m.Current.X, m.Current.Y, m.Current.Timestamp)
}

// MatchList is the batch of correspondences produced by one flush.
type MatchList []Match

// Camera carries the intrinsics handed to the interpolation collaborator.
// The engine itself never interprets it.
type Camera struct {
	Width  int
	Height int
	Fx, Fy float64
	Cx, Cy float64
}

// Contains reports whether p lies inside the camera's image plane.
func (c Camera) Contains(p Point2D) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(c.Width-1) && p.Y <= float64(c.Height-1)
}
