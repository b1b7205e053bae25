package fxloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/fxloop/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptions_Defaults(t *testing.T) {
	opts := NewOptions()

	assert.Equal(t, 44100, opts.SampleRate)
	assert.Equal(t, 2, opts.Channels)
	assert.Equal(t, 4096, opts.BlockSize)
	assert.Equal(t, []string{"pitch_shift", "reverb"}, opts.EffectChain)
	assert.True(t, opts.ReverbCarryOver)
	assert.Equal(t, 1.0, opts.Gain)
	assert.Equal(t, 0.3, opts.AutoGainTarget)
	assert.Equal(t, "waveform", opts.View)
	assert.Equal(t, time.Second, opts.ReportInterval)
	assert.Equal(t, time.Second/60, opts.FrameInterval())
	require.NoError(t, opts.Validate())

	// Mutating one instance must not leak into the package default.
	opts.EffectChain[0] = "gain"
	assert.Equal(t, "pitch_shift", audio.DefaultEffectChain[0])
}

func TestDecodeOptions(t *testing.T) {
	doc := `
sample_rate: 48000
channels: 1
block_size: 512
effect_chain: [PitchShift, gain, Reverb]
reverb_carry_over: false
gain: 0.5
report_interval: 2s
detailed_logging: true
`
	opts, err := DecodeOptions(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 48000, opts.SampleRate)
	assert.Equal(t, 1, opts.Channels)
	assert.Equal(t, 512, opts.BlockSize)
	assert.Equal(t, []string{"PitchShift", "gain", "Reverb"}, opts.EffectChain)
	assert.False(t, opts.ReverbCarryOver)
	assert.Equal(t, 0.5, opts.Gain)
	assert.Equal(t, 2*time.Second, opts.ReportInterval)
	assert.True(t, opts.DetailedLogging)
	assert.Equal(t, DefaultTargetFPS, opts.TargetFPS, "absent keys keep defaults")
}

func TestDecodeOptions_EmptyDocument(t *testing.T) {
	opts, err := DecodeOptions(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, NewOptions().EffectChain, opts.EffectChain)
}

func TestDecodeOptions_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{name: "unknown key", doc: "sample_rte: 44100\n", wantErr: audio.ErrInvalidConfig},
		{name: "zero channels", doc: "channels: 0\n", wantErr: audio.ErrInvalidConfig},
		{name: "negative block size", doc: "block_size: -4\n", wantErr: audio.ErrInvalidConfig},
		{name: "gain too high", doc: "gain: 9\n", wantErr: audio.ErrInvalidConfig},
		{name: "auto gain target above full scale", doc: "auto_gain_target: 1.5\n", wantErr: audio.ErrInvalidConfig},
		{name: "zero report interval", doc: "report_interval: 0s\n", wantErr: audio.ErrInvalidConfig},
		{name: "unknown view", doc: "view: scope\n", wantErr: audio.ErrInvalidConfig},
		{name: "zero target fps", doc: "target_fps: 0\n", wantErr: audio.ErrInvalidConfig},
		{name: "unknown effect", doc: "effect_chain: [pitch_shift, chorus]\n", wantErr: audio.ErrUnknownEffect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOptions(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fxloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("block_size: 1024\n"), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, opts.BlockSize)

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOptions_EffectConfig(t *testing.T) {
	opts := NewOptions()
	opts.Gain = 2
	opts.ReverbCarryOver = false

	cfg := opts.EffectConfig()
	assert.Equal(t, audio.EffectConfig{SampleRate: 44100, Channels: 2, CarryOver: false, Gain: 2, AutoGain: 0.3}, cfg)
	assert.Equal(t, audio.ProcessorConfig{SampleRate: 44100, Channels: 2, BlockSize: 4096}, opts.ProcessorConfig())
}
