package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/evtrack/internal/config"
	"github.com/banshee-data/evtrack/internal/dataset"
	"github.com/banshee-data/evtrack/internal/eklt"
	"github.com/banshee-data/evtrack/internal/memmon"
	"github.com/banshee-data/evtrack/internal/monitor"
	"github.com/banshee-data/evtrack/internal/monitoring"
	"github.com/banshee-data/evtrack/internal/patches"
	"github.com/banshee-data/evtrack/internal/storage/sqlite"
	"github.com/banshee-data/evtrack/internal/timeutil"
)

type options struct {
	ConfigPath string
	EventsPath string
	ImagesPath string
	DBPath     string
	PlotPath   string
	ChartPath  string
	Label      string
	Realtime   bool
	Speed      float64
	Clock      timeutil.Clock
}

type summary struct {
	RunID   string
	Flushes int
	Matches int
	Seeded  int
	Lost    int
	Stats   dataset.Stats
}

// trackerSink feeds the replay into the tracker and fans the emitted
// match lists out to the configured recorders.
type trackerSink struct {
	tr    *eklt.AsyncFeatureTracker
	store *sqlite.MatchStore
	runID string
	plot  *monitor.TrajectoryPlot
	log   monitor.FlushLog

	matches int
}

func (s *trackerSink) Image(ts float64, img *eklt.Image) error {
	s.tr.ProcessImage(ts, img)
	return nil
}

func (s *trackerSink) Events(batch eklt.EventBatch) error {
	lists := s.tr.ProcessEvents(batch)
	times := s.tr.FlushTimes()
	for i, ml := range lists {
		t := times[i]
		seq := len(s.log.Stats())
		s.log.Record(t, len(ml))
		s.matches += len(ml)
		if s.plot != nil {
			s.plot.Add(ml)
		}
		if s.store != nil {
			if err := s.store.InsertMatchList(s.runID, seq, t, ml); err != nil {
				return fmt.Errorf("store flush %d: %w", seq, err)
			}
		}
	}
	return nil
}

func loadParams(path string) (eklt.Params, *config.TuningConfig, error) {
	cfg := config.EmptyTuningConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(path); err != nil {
			return eklt.Params{}, nil, err
		}
	}
	p, err := eklt.ParamsFromTuning(cfg)
	return p, cfg, err
}

func run(ctx context.Context, opts options) (summary, error) {
	var sum summary

	params, cfg, err := loadParams(opts.ConfigPath)
	if err != nil {
		return sum, fmt.Errorf("load config: %w", err)
	}

	events, err := dataset.LoadEvents(opts.EventsPath)
	if err != nil {
		return sum, err
	}
	images, err := dataset.LoadImageList(opts.ImagesPath)
	if err != nil {
		return sum, err
	}
	batches := dataset.BatchEvents(events, cfg.GetEventsPerBatch(), cfg.GetBatchDuration())
	monitoring.Logf("loaded %d events in %d batches, %d images", len(events), len(batches), len(images))

	camera := eklt.Camera{Width: params.ImageWidth, Height: params.ImageHeight}
	tr := eklt.NewAsyncFeatureTracker(camera, params, patches.NewInterpolator(camera))
	defer tr.Close()
	mgr := patches.Attach(tr)
	defer mgr.Close()

	sink := &trackerSink{tr: tr}
	if opts.PlotPath != "" {
		sink.plot = monitor.NewTrajectoryPlot(params.ImageWidth, params.ImageHeight)
	}
	if opts.DBPath != "" {
		store, err := sqlite.OpenMatchStore(opts.DBPath)
		if err != nil {
			return sum, err
		}
		defer store.Close()

		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return sum, fmt.Errorf("encode params: %w", err)
		}
		rec := &sqlite.Run{Label: opts.Label, ParamsJSON: paramsJSON}
		if err := store.StartRun(rec); err != nil {
			return sum, fmt.Errorf("start run: %w", err)
		}
		sink.store, sink.runID = store, rec.RunID
	}

	replayer := &dataset.Replayer{
		Load: func(ref dataset.ImageRef) (*eklt.Image, error) {
			return dataset.LoadImage(ref.Path, params.ImageWidth, params.ImageHeight)
		},
		Realtime: opts.Realtime,
		Speed:    opts.Speed,
		Clock:    opts.Clock,
	}
	stats, replayErr := replayer.Replay(ctx, images, batches, sink)

	sum = summary{
		RunID:   sink.runID,
		Flushes: len(sink.log.Stats()),
		Matches: sink.matches,
		Seeded:  mgr.Seeded(),
		Lost:    mgr.Lost(),
		Stats:   stats,
	}
	if sum.RunID == "" {
		sum.RunID = stats.RunID.String()
	}
	monitoring.Logf("memory in use by tracker components: %d bytes", memmon.TotalBytes())

	// Reports are written even for an interrupted replay.
	if sink.plot != nil {
		if err := sink.plot.Save(opts.PlotPath); err != nil {
			return sum, err
		}
	}
	if opts.ChartPath != "" {
		if err := writeChart(opts.ChartPath, sum.RunID, sink.log.Stats()); err != nil {
			return sum, err
		}
	}
	return sum, replayErr
}

func writeChart(path, runID string, stats []monitor.FlushStat) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return monitor.RenderFlushChart(f, "Matches per flush, run "+runID, stats)
}

// logTarget opens a log destination. The returned closer is never nil.
func logTarget(target string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch target {
	case "":
		return nil, nop, nil
	case "stderr":
		return os.Stderr, nop, nil
	case "stdout":
		return os.Stdout, nop, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nop, fmt.Errorf("failed to open log file %s: %w", target, err)
	}
	return f, f.Close, nil
}

// setupLogging points the tracker's ops, diag and trace streams at their
// destinations.
func setupLogging(ops, diag, trace string) (func(), error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var w eklt.LogWriters
	for _, dst := range []struct {
		target string
		into   *io.Writer
	}{
		{ops, &w.Ops},
		{diag, &w.Diag},
		{trace, &w.Trace},
	} {
		out, closer, err := logTarget(dst.target)
		if err != nil {
			closeAll()
			return func() {}, err
		}
		closers = append(closers, closer)
		*dst.into = out
	}
	eklt.SetLogWriters(w)
	return closeAll, nil
}
