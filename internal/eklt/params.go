package eklt

import (
	"errors"
	"fmt"

	"github.com/banshee-data/evtrack/internal/config"
)

// ErrInvalidParams is wrapped by every Params validation failure.
var ErrInvalidParams = errors.New("invalid tracker params")

// UpdateStrategy selects when accumulated patch changes are flushed into
// a MatchList.
type UpdateStrategy int

const (
	// EveryMessage flushes once at the end of each event batch.
	EveryMessage UpdateStrategy = iota
	// EveryNEvents flushes every UpdateEveryN events, retrying on the
	// next event when nothing changed.
	EveryNEvents
	// EveryNMsecWithEvents flushes when UpdateEveryN milliseconds have
	// passed since the last flush and some patch changed.
	EveryNMsecWithEvents
)

func (s UpdateStrategy) String() string {
	switch s {
	case EveryMessage:
		return config.StrategyEveryMessage
	case EveryNEvents:
		return config.StrategyEveryNEvents
	case EveryNMsecWithEvents:
		return config.StrategyEveryNMsecWithEvents
	default:
		return fmt.Sprintf("UpdateStrategy(%d)", int(s))
	}
}

// ParseUpdateStrategy maps a config string onto an UpdateStrategy.
func ParseUpdateStrategy(s string) (UpdateStrategy, error) {
	switch s {
	case config.StrategyEveryMessage:
		return EveryMessage, nil
	case config.StrategyEveryNEvents:
		return EveryNEvents, nil
	case config.StrategyEveryNMsecWithEvents:
		return EveryNMsecWithEvents, nil
	}
	return 0, fmt.Errorf("%w: unknown update strategy %q", ErrInvalidParams, s)
}

// Params configures the tracker, the masked seeder and the interpolator.
type Params struct {
	PatchSize   int // side length of a patch in pixels
	ImageWidth  int
	ImageHeight int
	NumPatches  int // target number of active patches

	// Corner detector
	QualityLevel float64 // fraction of the strongest response a corner must reach
	MinDistance  int     // minimum spacing between features, in pixels
	BlockSize    int     // structure tensor window
	HarrisK      float64 // Harris curvature constant

	UpdateStrategy UpdateStrategy
	UpdateEveryN   int // events or milliseconds, depending on UpdateStrategy

	// PatchUpdateEvents is consumed by the reference patch tracker.
	PatchUpdateEvents int
}

// DefaultParams returns the built-in defaults.
func DefaultParams() Params {
	p, err := ParamsFromTuning(config.EmptyTuningConfig())
	if err != nil {
		panic(err)
	}
	return p
}

// ParamsFromTuning builds Params from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) (Params, error) {
	strategy, err := ParseUpdateStrategy(cfg.GetEKFUpdateStrategy())
	if err != nil {
		return Params{}, err
	}
	p := Params{
		PatchSize:         cfg.GetPatchSize(),
		ImageWidth:        cfg.GetImageWidth(),
		ImageHeight:       cfg.GetImageHeight(),
		NumPatches:        cfg.GetNumPatches(),
		QualityLevel:      cfg.GetQualityLevel(),
		MinDistance:       cfg.GetMinDistance(),
		BlockSize:         cfg.GetBlockSize(),
		HarrisK:           cfg.GetHarrisK(),
		UpdateStrategy:    strategy,
		UpdateEveryN:      cfg.GetEKFUpdateEveryN(),
		PatchUpdateEvents: cfg.GetPatchUpdateEvents(),
	}
	return p, p.Validate()
}

// Validate checks the values the engine relies on.
func (p Params) Validate() error {
	switch {
	case p.PatchSize < 3:
		return fmt.Errorf("%w: patch size %d < 3", ErrInvalidParams, p.PatchSize)
	case p.ImageWidth <= 0 || p.ImageHeight <= 0:
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidParams, p.ImageWidth, p.ImageHeight)
	case p.QualityLevel <= 0 || p.QualityLevel > 1:
		return fmt.Errorf("%w: quality level %g not in (0, 1]", ErrInvalidParams, p.QualityLevel)
	case p.MinDistance < 0:
		return fmt.Errorf("%w: min distance %d", ErrInvalidParams, p.MinDistance)
	case p.BlockSize < 1:
		return fmt.Errorf("%w: block size %d", ErrInvalidParams, p.BlockSize)
	case p.UpdateStrategy < EveryMessage || p.UpdateStrategy > EveryNMsecWithEvents:
		return fmt.Errorf("%w: update strategy %v", ErrInvalidParams, p.UpdateStrategy)
	case p.UpdateStrategy != EveryMessage && p.UpdateEveryN <= 0:
		return fmt.Errorf("%w: update period %d for %v", ErrInvalidParams, p.UpdateEveryN, p.UpdateStrategy)
	}
	return nil
}

// HalfPatch is the border margin, in pixels, that keeps a patch centred
// on a feature entirely inside the image.
func (p Params) HalfPatch() int {
	return (p.PatchSize - 1) / 2
}
