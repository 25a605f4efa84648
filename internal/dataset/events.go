// Package dataset reads recorded event-camera sequences and replays them
// through a Sink in timestamp order.
//
// A sequence directory holds events.txt ("t x y p" per line, t in
// seconds, p 0 or 1) and images.txt ("t path" per line, paths relative to
// the list file).
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/evtrack/internal/eklt"
)

// ErrMalformedLine is wrapped by every parse error in the text readers.
var ErrMalformedLine = errors.New("malformed line")

// LoadEvents reads an events file from disk.
func LoadEvents(path string) ([]eklt.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	evs, err := ReadEvents(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return evs, nil
}

// ReadEvents parses "t x y p" lines. Blank lines and lines starting with
// '#' are skipped.
func ReadEvents(r io.Reader) ([]eklt.Event, error) {
	var out []eklt.Event
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w %d: want 4 fields, got %d", ErrMalformedLine, lineNo, len(parts))
		}
		ts, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w %d: timestamp: %v", ErrMalformedLine, lineNo, err)
		}
		x, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w %d: x: %v", ErrMalformedLine, lineNo, err)
		}
		y, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w %d: y: %v", ErrMalformedLine, lineNo, err)
		}
		var pol bool
		switch parts[3] {
		case "1":
			pol = true
		case "0", "-1":
		default:
			return nil, fmt.Errorf("%w %d: polarity %q", ErrMalformedLine, lineNo, parts[3])
		}

		out = append(out, eklt.Event{Timestamp: ts, X: uint16(x), Y: uint16(y), Polarity: pol})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return out, nil
}

// BatchEvents splits events into batches of at most maxCount events
// spanning less than maxDuration. A zero limit disables that bound; with
// both zero the result is a single batch.
func BatchEvents(events []eklt.Event, maxCount int, maxDuration time.Duration) []eklt.EventBatch {
	if len(events) == 0 {
		return nil
	}
	span := maxDuration.Seconds()

	var batches []eklt.EventBatch
	start := 0
	for i := 1; i < len(events); i++ {
		full := maxCount > 0 && i-start >= maxCount
		expired := span > 0 && events[i].Timestamp-events[start].Timestamp >= span
		if full || expired {
			batches = append(batches, eklt.EventBatch(events[start:i:i]))
			start = i
		}
	}
	return append(batches, eklt.EventBatch(events[start:]))
}
