package eklt

import (
	"fmt"
	"sort"

	"github.com/banshee-data/evtrack/internal/memmon"
)

// ImageBuffer is a time-ordered store of frames with unique timestamps.
// Entries are kept in a slice sorted by timestamp so that the
// "most recent at or before T" lookup is a binary search.
type ImageBuffer struct {
	entries []ImageEntry
	mem     *memmon.Registration
}

// NewImageBuffer returns an empty buffer registered with the process
// memory monitor. Call Close to deregister it.
func NewImageBuffer() *ImageBuffer {
	b := &ImageBuffer{}
	b.mem = memmon.Register(b)
	return b
}

// Insert adds img at timestamp. A multi-tile image is a caller bug and
// panics. Insert returns false, leaving the buffer unchanged, if an entry
// already exists at timestamp.
func (b *ImageBuffer) Insert(timestamp float64, img *Image) bool {
	if img == nil {
		panic("eklt: nil image inserted into image buffer")
	}
	if !img.singleTile() {
		panic(fmt.Sprintf("eklt: tiling not implemented, got %dx%d tiles", img.TilesH, img.TilesW))
	}
	i := b.search(timestamp)
	if i < len(b.entries) && b.entries[i].Timestamp == timestamp {
		return false
	}
	b.entries = append(b.entries, ImageEntry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = ImageEntry{Timestamp: timestamp, Image: img}
	return true
}

// FirstAtOrBefore returns the entry with the greatest timestamp <= t.
func (b *ImageBuffer) FirstAtOrBefore(t float64) (ImageEntry, bool) {
	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Timestamp > t
	})
	if i == 0 {
		return ImageEntry{}, false
	}
	return b.entries[i-1], true
}

// Remove deletes the entry at timestamp and reports whether it existed.
func (b *ImageBuffer) Remove(timestamp float64) bool {
	i := b.search(timestamp)
	if i >= len(b.entries) || b.entries[i].Timestamp != timestamp {
		return false
	}
	copy(b.entries[i:], b.entries[i+1:])
	b.entries[len(b.entries)-1] = ImageEntry{}
	b.entries = b.entries[:len(b.entries)-1]
	return true
}

// RemoveBefore deletes every entry older than timestamp and returns how
// many were removed.
func (b *ImageBuffer) RemoveBefore(timestamp float64) int {
	n := b.search(timestamp)
	if n == 0 {
		return 0
	}
	remaining := copy(b.entries, b.entries[n:])
	for i := remaining; i < len(b.entries); i++ {
		b.entries[i] = ImageEntry{}
	}
	b.entries = b.entries[:remaining]
	return n
}

// Newest returns the most recent entry.
func (b *ImageBuffer) Newest() (ImageEntry, bool) {
	if len(b.entries) == 0 {
		return ImageEntry{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// Len returns the number of buffered images.
func (b *ImageBuffer) Len() int { return len(b.entries) }

// Timestamps returns the buffered timestamps in ascending order.
func (b *ImageBuffer) Timestamps() []float64 {
	out := make([]float64, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Timestamp
	}
	return out
}

// MemoryUsageBytes sums the pixel storage of the buffered images. Like
// the rest of the engine it must not race with ProcessImage or
// ProcessEvents.
func (b *ImageBuffer) MemoryUsageBytes() int {
	total := 0
	for _, e := range b.entries {
		if e.Image != nil && e.Image.Gray != nil {
			total += len(e.Image.Pix)
		}
	}
	return total
}

// Close deregisters the buffer from the memory monitor.
func (b *ImageBuffer) Close() {
	b.mem.Deregister()
}

// search returns the index of the first entry with Timestamp >= t.
func (b *ImageBuffer) search(t float64) int {
	return sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Timestamp >= t
	})
}
