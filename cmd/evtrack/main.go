// Command evtrack replays a recorded event-camera sequence through the
// asynchronous feature tracker and records the emitted match lists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/evtrack/internal/security"
	"github.com/banshee-data/evtrack/internal/version"
)

var (
	configPath = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	seqDir     = flag.String("dataset", "", "Sequence directory holding events.txt and images.txt")
	eventsPath = flag.String("events", "", "Events file, overrides <dataset>/events.txt")
	imagesPath = flag.String("images", "", "Image list, overrides <dataset>/images.txt")
	dbPath     = flag.String("db", "", "SQLite file to store match lists in (disabled when empty)")
	plotPath   = flag.String("plot", "", "Write a trajectory plot to this path (.png, .svg)")
	chartPath  = flag.String("chart", "", "Write an HTML flush chart to this path")
	outDir     = flag.String("out", "", "Directory for reports named after -label, unless -plot/-chart are given")
	label      = flag.String("label", "", "Run label stored with the match lists")
	realtime   = flag.Bool("realtime", false, "Pace replay to the recorded timestamps")
	speed      = flag.Float64("speed", 1, "Playback speed multiplier for -realtime")
	logOps     = flag.String("log-ops", "stderr", "Ops log destination: stderr, stdout, a file path, or empty to disable")
	logDiag    = flag.String("log-diag", "", "Diag log destination")
	logTrace   = flag.String("log-trace", "", "Trace log destination")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	os.Exit(runMain())
}

// runMain returns the process exit code so deferred log and signal
// cleanup runs before exit.
func runMain() int {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return 0
	}

	opts := options{
		ConfigPath: *configPath,
		EventsPath: *eventsPath,
		ImagesPath: *imagesPath,
		DBPath:     *dbPath,
		PlotPath:   *plotPath,
		ChartPath:  *chartPath,
		Label:      *label,
		Realtime:   *realtime,
		Speed:      *speed,
	}
	if *seqDir != "" {
		if opts.EventsPath == "" {
			opts.EventsPath = filepath.Join(*seqDir, "events.txt")
		}
		if opts.ImagesPath == "" {
			opts.ImagesPath = filepath.Join(*seqDir, "images.txt")
		}
	}
	if *outDir != "" {
		stem := security.SanitizeFilename(*label)
		if opts.PlotPath == "" {
			opts.PlotPath = filepath.Join(*outDir, stem+"_trajectories.png")
		}
		if opts.ChartPath == "" {
			opts.ChartPath = filepath.Join(*outDir, stem+"_flushes.html")
		}
	}
	if opts.EventsPath == "" || opts.ImagesPath == "" {
		log.Print("an events file and an image list are required (-dataset or -events/-images)")
		return 2
	}

	closeLogs, err := setupLogging(*logOps, *logDiag, *logTrace)
	if err != nil {
		log.Printf("failed to set up logging: %v", err)
		return 1
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := run(ctx, opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("replay failed: %v", err)
		return 1
	}
	log.Printf("%s", version.String())
	log.Printf("run %s: %d flushes, %d matches, %d patches seeded, %d lost",
		sum.RunID, sum.Flushes, sum.Matches, sum.Seeded, sum.Lost)
	return 0
}
