package dataset

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/evtrack/internal/eklt"
	"github.com/banshee-data/evtrack/internal/monitoring"
	"github.com/banshee-data/evtrack/internal/timeutil"
)

// Sink consumes a replayed sequence.
type Sink interface {
	Image(ts float64, img *eklt.Image) error
	Events(batch eklt.EventBatch) error
}

// Replayer merges an image list and event batches in timestamp order.
type Replayer struct {
	// Load decodes an image reference. Defaults to LoadImage at the
	// source resolution.
	Load func(ref ImageRef) (*eklt.Image, error)

	// Realtime paces delivery to the recorded timestamps using Clock.
	Realtime bool
	Speed    float64
	Clock    timeutil.Clock
}

// Stats summarises one replay.
type Stats struct {
	RunID   uuid.UUID
	Images  int
	Batches int
	Events  int
}

// Replay delivers images and batches to sink in timestamp order. An image
// is delivered before a batch whose first event shares its timestamp.
// Replay stops at the first sink error or when ctx is done.
func (r *Replayer) Replay(ctx context.Context, images []ImageRef, batches []eklt.EventBatch, sink Sink) (Stats, error) {
	stats := Stats{RunID: uuid.New()}

	load := r.Load
	if load == nil {
		load = func(ref ImageRef) (*eklt.Image, error) { return LoadImage(ref.Path, 0, 0) }
	}
	var pacer *timeutil.Pacer
	if r.Realtime {
		clock := r.Clock
		if clock == nil {
			clock = timeutil.RealClock{}
		}
		pacer = timeutil.NewPacer(clock, r.Speed)
	}

	i, j := 0, 0
	for i < len(images) || j < len(batches) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Empty batches carry no time; skip them.
		if j < len(batches) && len(batches[j]) == 0 {
			j++
			continue
		}

		takeImage := j >= len(batches) ||
			(i < len(images) && images[i].Timestamp <= batches[j][0].Timestamp)

		if takeImage {
			ref := images[i]
			i++
			if pacer != nil {
				if err := pacer.Wait(ctx, ref.Timestamp); err != nil {
					return stats, err
				}
			}
			img, err := load(ref)
			if err != nil {
				return stats, fmt.Errorf("image %d: %w", i-1, err)
			}
			if err := sink.Image(ref.Timestamp, img); err != nil {
				return stats, err
			}
			stats.Images++
			continue
		}

		batch := batches[j]
		j++
		if pacer != nil {
			if err := pacer.Wait(ctx, batch[len(batch)-1].Timestamp); err != nil {
				return stats, err
			}
		}
		if err := sink.Events(batch); err != nil {
			return stats, err
		}
		stats.Batches++
		stats.Events += len(batch)
	}

	monitoring.Logf("replay %s: %d images, %d batches, %d events", stats.RunID, stats.Images, stats.Batches, stats.Events)
	return stats, nil
}
