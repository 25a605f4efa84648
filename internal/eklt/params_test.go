package eklt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/evtrack/internal/config"
)

func TestParseUpdateStrategy(t *testing.T) {
	t.Parallel()
	for _, s := range []UpdateStrategy{EveryMessage, EveryNEvents, EveryNMsecWithEvents} {
		got, err := ParseUpdateStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseUpdateStrategy("every_full_moon")
	assert.True(t, errors.Is(err, ErrInvalidParams))
	assert.Equal(t, "UpdateStrategy(9)", UpdateStrategy(9).String())
}

func TestDefaultParams(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	assert.Equal(t, 25, p.PatchSize)
	assert.Equal(t, 12, p.HalfPatch())
	assert.Equal(t, EveryNEvents, p.UpdateStrategy)
	assert.Equal(t, 20, p.UpdateEveryN)
	assert.NoError(t, p.Validate())
}

func TestParamsFromTuning(t *testing.T) {
	t.Parallel()
	var cfg config.TuningConfig
	err := json.Unmarshal([]byte(`{
		"patch_size": 31,
		"min_distance": 12,
		"ekf_update_strategy": "every_n_msec_with_events",
		"ekf_update_every_n": 4
	}`), &cfg)
	require.NoError(t, err)

	p, err := ParamsFromTuning(&cfg)
	require.NoError(t, err)
	assert.Equal(t, 31, p.PatchSize)
	assert.Equal(t, 15, p.HalfPatch())
	assert.Equal(t, 12, p.MinDistance)
	assert.Equal(t, EveryNMsecWithEvents, p.UpdateStrategy)
	assert.Equal(t, 4, p.UpdateEveryN)
	assert.Equal(t, 100, p.NumPatches, "unset keys fall back to defaults")
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"tiny patch", func(p *Params) { p.PatchSize = 2 }},
		{"zero width", func(p *Params) { p.ImageWidth = 0 }},
		{"quality zero", func(p *Params) { p.QualityLevel = 0 }},
		{"quality above one", func(p *Params) { p.QualityLevel = 1.5 }},
		{"negative distance", func(p *Params) { p.MinDistance = -1 }},
		{"zero block", func(p *Params) { p.BlockSize = 0 }},
		{"unknown strategy", func(p *Params) { p.UpdateStrategy = 7 }},
		{"zero period", func(p *Params) { p.UpdateEveryN = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParams), err.Error())
		})
	}

	p := DefaultParams()
	p.UpdateStrategy = EveryMessage
	p.UpdateEveryN = 0
	assert.NoError(t, p.Validate(), "every_message ignores the period")
}
