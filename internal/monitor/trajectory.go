// Package monitor renders offline reports of a tracking run: a PNG of
// patch trajectories and an HTML chart of match counts per flush.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/evtrack/internal/eklt"
)

// TrajectoryPlot accumulates reported patch positions across flushes.
type TrajectoryPlot struct {
	mu     sync.Mutex
	width  int
	height int

	tracks map[string]plotter.XYs
}

// NewTrajectoryPlot returns a plot for an image plane of the given size.
func NewTrajectoryPlot(width, height int) *TrajectoryPlot {
	return &TrajectoryPlot{
		width:  width,
		height: height,
		tracks: make(map[string]plotter.XYs),
	}
}

// Add records every match of ml. A patch's first match contributes both
// its previous and current position.
func (tp *TrajectoryPlot) Add(ml eklt.MatchList) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	for _, m := range ml {
		pts, ok := tp.tracks[m.PatchID]
		if !ok {
			pts = append(pts, tp.xy(m.Previous))
		}
		tp.tracks[m.PatchID] = append(pts, tp.xy(m.Current))
	}
}

// Tracks returns the number of distinct patches seen.
func (tp *TrajectoryPlot) Tracks() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.tracks)
}

// Save writes the plot to path. The format follows the file extension
// (png, svg, pdf, ...).
func (tp *TrajectoryPlot) Save(path string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Patch trajectories (%d patches)", len(tp.tracks))
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px, flipped)"
	p.X.Min, p.X.Max = 0, float64(tp.width)
	p.Y.Min, p.Y.Max = 0, float64(tp.height)
	p.Add(plotter.NewGrid())

	ids := make([]string, 0, len(tp.tracks))
	for id := range tp.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		line, points, err := plotter.NewLinePoints(tp.tracks[id])
		if err != nil {
			return fmt.Errorf("patch %s: %w", id, err)
		}
		c := plotutil.Color(i)
		line.Color = c
		line.Width = vg.Points(1)
		points.Color = c
		points.Radius = vg.Points(1.5)
		p.Add(line, points)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	aspect := 1.0
	if tp.width > 0 {
		aspect = float64(tp.height) / float64(tp.width)
	}
	w := 8 * vg.Inch
	if err := p.Save(w, vg.Length(aspect)*w, path); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}
	return nil
}

// xy maps image coordinates (origin top-left) to plot coordinates.
func (tp *TrajectoryPlot) xy(f eklt.Feature) plotter.XY {
	return plotter.XY{X: f.X, Y: float64(tp.height-1) - f.Y}
}
