package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/banshee-data/evtrack/internal/eklt"
	"github.com/banshee-data/evtrack/internal/testutil"
	"github.com/banshee-data/evtrack/internal/timeutil"
)

func TestReadEvents(t *testing.T) {
	t.Parallel()
	in := `# t x y p
0.001 10 20 1

0.002 11 21 0
0.003 12 22 -1
`
	got, err := ReadEvents(strings.NewReader(in))
	require.NoError(t, err)
	want := []eklt.Event{
		{Timestamp: 0.001, X: 10, Y: 20, Polarity: true},
		{Timestamp: 0.002, X: 11, Y: 21},
		{Timestamp: 0.003, X: 12, Y: 22},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEvents_Malformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
	}{
		{"too few fields", "0.1 1 2"},
		{"bad timestamp", "abc 1 2 1"},
		{"negative x", "0.1 -1 2 1"},
		{"x overflow", "0.1 70000 2 1"},
		{"bad polarity", "0.1 1 2 x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadEvents(strings.NewReader("0.0 1 1 1\n" + tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedLine))
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestLoadEvents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "events.txt", "1.5 3 4 1\n")
	evs, err := LoadEvents(path)
	require.NoError(t, err)
	assert.Len(t, evs, 1)

	_, err = LoadEvents(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestReadImageList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := "# t path\n1.0 frames/0001.png\n2.0 /abs/0002.png\n"
	got, err := ReadImageList(strings.NewReader(in), dir)
	require.NoError(t, err)
	want := []ImageRef{
		{Timestamp: 1.0, Path: filepath.Join(dir, "frames", "0001.png")},
		{Timestamp: 2.0, Path: "/abs/0002.png"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("image list mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadImageList(strings.NewReader("1.0\n"), dir)
	assert.True(t, errors.Is(err, ErrMalformedLine))

	_, err = ReadImageList(strings.NewReader("1.0 ../../etc/passwd\n"), dir)
	assert.ErrorContains(t, err, "path traversal")
}

func TestBatchEvents(t *testing.T) {
	t.Parallel()
	evs := make([]eklt.Event, 10)
	for i := range evs {
		evs[i] = eklt.Event{Timestamp: float64(i) * 0.004}
	}
	sizes := func(bs []eklt.EventBatch) []int {
		out := make([]int, len(bs))
		for i, b := range bs {
			out[i] = len(b)
		}
		return out
	}

	assert.Equal(t, []int{10}, sizes(BatchEvents(evs, 0, 0)))
	assert.Equal(t, []int{4, 4, 2}, sizes(BatchEvents(evs, 4, 0)))
	// 0, 4, 8 ms fit in 10ms; 12 ms starts a new batch.
	assert.Equal(t, []int{3, 3, 3, 1}, sizes(BatchEvents(evs, 0, 10*time.Millisecond)))
	assert.Equal(t, []int{2, 2, 2, 2, 2}, sizes(BatchEvents(evs, 2, 10*time.Millisecond)))
	assert.Nil(t, BatchEvents(nil, 4, 0))

	// Batches never alias past their end.
	bs := BatchEvents(evs, 4, 0)
	assert.Equal(t, 4, cap(bs[0]))
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoadImage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	src := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	pngPath := filepath.Join(dir, "frame.png")
	writePNG(t, pngPath, src)

	img, err := LoadImage(pngPath, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Width())
	assert.Equal(t, 6, img.Height())
	assert.Equal(t, uint8(255), img.GrayAt(3, 3).Y)
	assert.Equal(t, 1, img.TilesH)

	scaled, err := LoadImage(pngPath, 16, 12)
	require.NoError(t, err)
	assert.Equal(t, 16, scaled.Width())
	assert.Equal(t, 12, scaled.Height())
	assert.InDelta(t, 255, float64(scaled.GrayAt(8, 6).Y), 1)

	bmpPath := filepath.Join(dir, "frame.bmp")
	f, err := os.Create(bmpPath)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, testutil.BlankImage(4, 4, 90)))
	require.NoError(t, f.Close())
	fromBMP, err := LoadImage(bmpPath, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(90), fromBMP.GrayAt(1, 1).Y)

	bad := testutil.WriteFile(t, dir, "bad.png", "not an image")
	_, err = LoadImage(bad, 0, 0)
	assert.Error(t, err)
}

type recordingSink struct {
	log    []string
	failOn int
	calls  int
}

func (s *recordingSink) Image(ts float64, _ *eklt.Image) error {
	return s.record("img", ts)
}

func (s *recordingSink) Events(b eklt.EventBatch) error {
	return s.record("ev", b[0].Timestamp)
}

func (s *recordingSink) record(kind string, ts float64) error {
	s.calls++
	if s.failOn > 0 && s.calls == s.failOn {
		return errSinkFull
	}
	s.log = append(s.log, fmt.Sprintf("%s@%g", kind, ts))
	return nil
}

var errSinkFull = errors.New("sink full")

func stubLoad(ImageRef) (*eklt.Image, error) { return eklt.NewImage(4, 4), nil }

func TestReplay_MergesInTimeOrder(t *testing.T) {
	t.Parallel()
	images := []ImageRef{{Timestamp: 1.0}, {Timestamp: 2.0}, {Timestamp: 3.0}}
	batches := []eklt.EventBatch{
		{{Timestamp: 0.5}, {Timestamp: 0.9}},
		{{Timestamp: 1.0}},
		{},
		{{Timestamp: 1.5}, {Timestamp: 2.5}},
		{{Timestamp: 3.5}},
	}
	sink := &recordingSink{}
	r := &Replayer{Load: stubLoad}

	stats, err := r.Replay(context.Background(), images, batches, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev@0.5", "img@1", "ev@1", "ev@1.5", "img@2", "img@3", "ev@3.5"}, sink.log)
	assert.Equal(t, 3, stats.Images)
	assert.Equal(t, 4, stats.Batches)
	assert.Equal(t, 6, stats.Events)
	assert.NotEqual(t, uuid.Nil, stats.RunID)
}

func TestReplay_StopsOnSinkError(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{failOn: 2}
	r := &Replayer{Load: stubLoad}
	_, err := r.Replay(context.Background(),
		[]ImageRef{{Timestamp: 1}, {Timestamp: 2}},
		[]eklt.EventBatch{{{Timestamp: 1.5}}}, sink)
	assert.ErrorIs(t, err, errSinkFull)
	assert.Equal(t, []string{"img@1"}, sink.log)
}

func TestReplay_LoadError(t *testing.T) {
	t.Parallel()
	r := &Replayer{Load: func(ImageRef) (*eklt.Image, error) { return nil, os.ErrNotExist }}
	_, err := r.Replay(context.Background(), []ImageRef{{Timestamp: 1}}, nil, &recordingSink{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReplay_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Replayer{Load: stubLoad}
	_, err := r.Replay(ctx, []ImageRef{{Timestamp: 1}}, nil, &recordingSink{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplay_Realtime(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r := &Replayer{Load: stubLoad, Realtime: true, Clock: clock}

	_, err := r.Replay(context.Background(),
		[]ImageRef{{Timestamp: 10.0}, {Timestamp: 10.5}},
		[]eklt.EventBatch{{{Timestamp: 10.1}, {Timestamp: 10.2}}},
		&recordingSink{})
	require.NoError(t, err)

	// Batches wait for their last event.
	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 2)
	assert.InDelta(t, float64(200*time.Millisecond), float64(sleeps[0]), float64(time.Microsecond))
	assert.InDelta(t, float64(300*time.Millisecond), float64(sleeps[1]), float64(time.Microsecond))
}
