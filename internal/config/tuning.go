package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Recognised values for the ekf_update_strategy key.
const (
	StrategyEveryMessage         = "every_message"
	StrategyEveryNEvents         = "every_n_events"
	StrategyEveryNMsecWithEvents = "every_n_msec_with_events"
)

// TuningConfig represents the root configuration for tracker tuning.
// Every field is optional; the Get* methods supply defaults for fields
// that are not present in the JSON.
type TuningConfig struct {
	// Patch geometry
	PatchSize  *int `json:"patch_size,omitempty"`
	NumPatches *int `json:"num_patches,omitempty"`

	// Image geometry
	ImageWidth  *int `json:"img_width,omitempty"`
	ImageHeight *int `json:"img_height,omitempty"`

	// Corner detector params
	QualityLevel *float64 `json:"quality_level,omitempty"`
	MinDistance  *int     `json:"min_distance,omitempty"`
	BlockSize    *int     `json:"block_size,omitempty"`
	HarrisK      *float64 `json:"harris_k,omitempty"`

	// EKF update scheduling
	EKFUpdateStrategy *string `json:"ekf_update_strategy,omitempty"`
	EKFUpdateEveryN   *int    `json:"ekf_update_every_n,omitempty"`

	// Reference patch tracker
	PatchUpdateEvents *int `json:"patch_update_events,omitempty"`

	// Dataset replay
	EventsPerBatch *int    `json:"events_per_batch,omitempty"`
	BatchDuration  *string `json:"batch_duration,omitempty"` // duration string like "10ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	return &TuningConfig{
		PatchSize:         ptrInt(c.GetPatchSize()),
		NumPatches:        ptrInt(c.GetNumPatches()),
		ImageWidth:        ptrInt(c.GetImageWidth()),
		ImageHeight:       ptrInt(c.GetImageHeight()),
		QualityLevel:      ptrFloat64(c.GetQualityLevel()),
		MinDistance:       ptrInt(c.GetMinDistance()),
		BlockSize:         ptrInt(c.GetBlockSize()),
		HarrisK:           ptrFloat64(c.GetHarrisK()),
		EKFUpdateStrategy: ptrString(c.GetEKFUpdateStrategy()),
		EKFUpdateEveryN:   ptrInt(c.GetEKFUpdateEveryN()),
		PatchUpdateEvents: ptrInt(c.GetPatchUpdateEvents()),
		EventsPerBatch:    ptrInt(c.GetEventsPerBatch()),
		BatchDuration:     ptrString(c.GetBatchDuration().String()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the JSON file fall back to their defaults, so partial configs are
// safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.PatchSize != nil && *c.PatchSize < 3 {
		return fmt.Errorf("patch_size must be at least 3, got %d", *c.PatchSize)
	}
	if c.NumPatches != nil && *c.NumPatches < 0 {
		return fmt.Errorf("num_patches must be non-negative, got %d", *c.NumPatches)
	}
	if c.ImageWidth != nil && *c.ImageWidth <= 0 {
		return fmt.Errorf("img_width must be positive, got %d", *c.ImageWidth)
	}
	if c.ImageHeight != nil && *c.ImageHeight <= 0 {
		return fmt.Errorf("img_height must be positive, got %d", *c.ImageHeight)
	}
	if c.QualityLevel != nil && (*c.QualityLevel <= 0 || *c.QualityLevel > 1) {
		return fmt.Errorf("quality_level must be in (0, 1], got %f", *c.QualityLevel)
	}
	if c.MinDistance != nil && *c.MinDistance < 0 {
		return fmt.Errorf("min_distance must be non-negative, got %d", *c.MinDistance)
	}
	if c.BlockSize != nil && (*c.BlockSize < 1 || *c.BlockSize%2 == 0) {
		return fmt.Errorf("block_size must be a positive odd number, got %d", *c.BlockSize)
	}
	if c.EKFUpdateStrategy != nil {
		switch *c.EKFUpdateStrategy {
		case StrategyEveryMessage, StrategyEveryNEvents, StrategyEveryNMsecWithEvents:
		default:
			return fmt.Errorf("unknown ekf_update_strategy %q", *c.EKFUpdateStrategy)
		}
	}
	if c.EKFUpdateEveryN != nil && *c.EKFUpdateEveryN <= 0 {
		return fmt.Errorf("ekf_update_every_n must be positive, got %d", *c.EKFUpdateEveryN)
	}
	if c.PatchUpdateEvents != nil && *c.PatchUpdateEvents <= 0 {
		return fmt.Errorf("patch_update_events must be positive, got %d", *c.PatchUpdateEvents)
	}
	if c.EventsPerBatch != nil && *c.EventsPerBatch < 0 {
		return fmt.Errorf("events_per_batch must be non-negative, got %d", *c.EventsPerBatch)
	}
	if c.BatchDuration != nil && *c.BatchDuration != "" {
		if _, err := time.ParseDuration(*c.BatchDuration); err != nil {
			return fmt.Errorf("invalid batch_duration '%s': %w", *c.BatchDuration, err)
		}
	}
	return nil
}

// GetPatchSize returns the patch_size value or the default.
func (c *TuningConfig) GetPatchSize() int {
	if c.PatchSize == nil {
		return 25
	}
	return *c.PatchSize
}

// GetNumPatches returns the num_patches value or the default.
func (c *TuningConfig) GetNumPatches() int {
	if c.NumPatches == nil {
		return 100
	}
	return *c.NumPatches
}

// GetImageWidth returns the img_width value or the default.
func (c *TuningConfig) GetImageWidth() int {
	if c.ImageWidth == nil {
		return 240
	}
	return *c.ImageWidth
}

// GetImageHeight returns the img_height value or the default.
func (c *TuningConfig) GetImageHeight() int {
	if c.ImageHeight == nil {
		return 180
	}
	return *c.ImageHeight
}

// GetQualityLevel returns the quality_level value or the default.
func (c *TuningConfig) GetQualityLevel() float64 {
	if c.QualityLevel == nil {
		return 0.3
	}
	return *c.QualityLevel
}

// GetMinDistance returns the min_distance value or the default.
func (c *TuningConfig) GetMinDistance() int {
	if c.MinDistance == nil {
		return 30
	}
	return *c.MinDistance
}

// GetBlockSize returns the block_size value or the default.
func (c *TuningConfig) GetBlockSize() int {
	if c.BlockSize == nil {
		return 3
	}
	return *c.BlockSize
}

// GetHarrisK returns the harris_k value or the default.
func (c *TuningConfig) GetHarrisK() float64 {
	if c.HarrisK == nil {
		return 0.04
	}
	return *c.HarrisK
}

// GetEKFUpdateStrategy returns the ekf_update_strategy value or the default.
func (c *TuningConfig) GetEKFUpdateStrategy() string {
	if c.EKFUpdateStrategy == nil || *c.EKFUpdateStrategy == "" {
		return StrategyEveryNEvents
	}
	return *c.EKFUpdateStrategy
}

// GetEKFUpdateEveryN returns the ekf_update_every_n value or the default.
// It is an event count or a period in milliseconds depending on the strategy.
func (c *TuningConfig) GetEKFUpdateEveryN() int {
	if c.EKFUpdateEveryN == nil {
		return 20
	}
	return *c.EKFUpdateEveryN
}

// GetPatchUpdateEvents returns the patch_update_events value or the default.
func (c *TuningConfig) GetPatchUpdateEvents() int {
	if c.PatchUpdateEvents == nil {
		return 8
	}
	return *c.PatchUpdateEvents
}

// GetEventsPerBatch returns the events_per_batch value or the default.
// Zero disables count-based batching.
func (c *TuningConfig) GetEventsPerBatch() int {
	if c.EventsPerBatch == nil {
		return 0
	}
	return *c.EventsPerBatch
}

// GetBatchDuration parses and returns the BatchDuration as a time.Duration.
func (c *TuningConfig) GetBatchDuration() time.Duration {
	if c.BatchDuration == nil || *c.BatchDuration == "" {
		return 10 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.BatchDuration)
	if err != nil {
		return 10 * time.Millisecond // default on parse error
	}
	return d
}
