// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic image fixtures and common assertions
// so that tests across packages build the same scenes.
package testutil

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// BlankImage returns a uniform gray image.
func BlankImage(w, h int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

// SquaresImage returns a black image with white filled squares. Each
// square contributes four strong corners.
func SquaresImage(w, h int, squares ...image.Rectangle) *image.Gray {
	img := BlankImage(w, h, 0)
	for _, sq := range squares {
		r := sq.Intersect(img.Rect)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// CheckerboardImage returns a checkerboard with the given cell size. Cell
// junctions are strong corners spaced cell pixels apart.
func CheckerboardImage(w, h, cell int) *image.Gray {
	img := BlankImage(w, h, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Pix[img.PixOffset(x, y)] = 255
			}
		}
	}
	return img
}

// SquareCorners returns the four outer corner pixels of sq.
func SquareCorners(sq image.Rectangle) []image.Point {
	return []image.Point{
		{sq.Min.X, sq.Min.Y},
		{sq.Max.X - 1, sq.Min.Y},
		{sq.Min.X, sq.Max.Y - 1},
		{sq.Max.X - 1, sq.Max.Y - 1},
	}
}

// NearAny reports whether (x, y) lies within tol pixels of any point in pts.
func NearAny(x, y float64, pts []image.Point, tol float64) bool {
	for _, p := range pts {
		if math.Hypot(x-float64(p.X), y-float64(p.Y)) <= tol {
			return true
		}
	}
	return false
}

// RawEvent is a package-neutral event sample. Callers convert it to their
// own event type.
type RawEvent struct {
	T float64
	X int
	Y int
	P bool
}

// ClusterEvents returns n events starting at t0, spaced dt seconds apart,
// scattered uniformly within radius r pixels of (cx, cy). The scatter is
// deterministic for a given seed.
func ClusterEvents(t0, dt float64, n int, cx, cy, r float64, seed int64) []RawEvent {
	rng := rand.New(rand.NewSource(seed))
	out := make([]RawEvent, n)
	for i := range out {
		out[i] = RawEvent{
			T: t0 + float64(i)*dt,
			X: int(math.Round(cx + (rng.Float64()*2-1)*r)),
			Y: int(math.Round(cy + (rng.Float64()*2-1)*r)),
			P: rng.Intn(2) == 1,
		}
	}
	return out
}

// WriteFile writes content to name inside dir and returns the full path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
