package fxloop

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/opd-ai/fxloop/audio"
	"github.com/opd-ai/fxloop/display"
	"github.com/opd-ai/fxloop/stats"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Options contains engine configuration.
type Options struct {
	SampleRate  int      `yaml:"sample_rate"`
	Channels    int      `yaml:"channels"`
	BlockSize   int      `yaml:"block_size"` // frames per device callback
	EffectChain []string `yaml:"effect_chain"`

	ReverbCarryOver bool    `yaml:"reverb_carry_over"`
	Gain            float64 `yaml:"gain"`
	AutoGainTarget  float64 `yaml:"auto_gain_target"` // peak level, (0, 1]

	ReportInterval  time.Duration `yaml:"report_interval"`
	DetailedLogging bool          `yaml:"detailed_logging"`

	TargetFPS    int    `yaml:"target_fps"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	View         string `yaml:"view"` // waveform or spectrum

	// Registry resolves EffectChain identifiers. Nil means
	// audio.DefaultRegistry().
	Registry *audio.Registry `yaml:"-"`

	// Sink receives statistics reports. Nil means a logrus sink on the
	// standard logger.
	Sink stats.Sink `yaml:"-"`
}

// Display defaults.
const (
	DefaultTargetFPS    = 60
	DefaultWindowWidth  = 800
	DefaultWindowHeight = 400
)

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		SampleRate:      audio.DefaultSampleRate,
		Channels:        audio.DefaultChannels,
		BlockSize:       audio.DefaultBlockSize,
		EffectChain:     append([]string(nil), audio.DefaultEffectChain...),
		ReverbCarryOver: true,
		Gain:            1.0,
		AutoGainTarget:  audio.DefaultAutoGainTarget,
		ReportInterval:  stats.DefaultInterval,
		TargetFPS:       DefaultTargetFPS,
		WindowWidth:     DefaultWindowWidth,
		WindowHeight:    DefaultWindowHeight,
		View:            string(display.ViewWaveform),
	}
}

// LoadOptions reads YAML options from path on top of NewOptions defaults
// and validates the result.
func LoadOptions(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open options: %w", err)
	}
	defer f.Close()

	opts, err := DecodeOptions(f)
	if err != nil {
		return nil, fmt.Errorf("load options %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "LoadOptions",
		"path":         path,
		"effect_chain": opts.EffectChain,
	}).Info("Options loaded")

	return opts, nil
}

// DecodeOptions parses YAML options from r. Keys not present keep their
// defaults; unknown keys are rejected. An empty document yields the
// defaults.
func DecodeOptions(r io.Reader) (*Options, error) {
	opts := NewOptions()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", audio.ErrInvalidConfig, err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks every field and that each effect identifier is known to
// the registry.
func (o *Options) Validate() error {
	if err := o.ProcessorConfig().Validate(); err != nil {
		return err
	}
	if math.IsNaN(o.Gain) || o.Gain < 0 || o.Gain > 4 {
		return fmt.Errorf("%w: gain %v outside [0, 4]", audio.ErrInvalidConfig, o.Gain)
	}
	if math.IsNaN(o.AutoGainTarget) || o.AutoGainTarget <= 0 || o.AutoGainTarget > 1 {
		return fmt.Errorf("%w: auto gain target %v outside (0, 1]", audio.ErrInvalidConfig, o.AutoGainTarget)
	}
	if o.ReportInterval <= 0 {
		return fmt.Errorf("%w: report interval must be positive", audio.ErrInvalidConfig)
	}
	if o.TargetFPS <= 0 {
		return fmt.Errorf("%w: target fps must be positive", audio.ErrInvalidConfig)
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		return fmt.Errorf("%w: window size %dx%d", audio.ErrInvalidConfig, o.WindowWidth, o.WindowHeight)
	}
	if _, err := display.ParseView(o.View); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrInvalidConfig, err)
	}

	registry := o.registry()
	for i, id := range o.EffectChain {
		if registry.Lookup(id) == nil {
			return fmt.Errorf("%w: %q at position %d", audio.ErrUnknownEffect, id, i)
		}
	}
	return nil
}

// ProcessorConfig returns the block processor settings.
func (o *Options) ProcessorConfig() audio.ProcessorConfig {
	return audio.ProcessorConfig{
		SampleRate: o.SampleRate,
		Channels:   o.Channels,
		BlockSize:  o.BlockSize,
	}
}

// EffectConfig returns the parameters passed to effect factories.
func (o *Options) EffectConfig() audio.EffectConfig {
	return audio.EffectConfig{
		SampleRate: o.SampleRate,
		Channels:   o.Channels,
		CarryOver:  o.ReverbCarryOver,
		Gain:       o.Gain,
		AutoGain:   o.AutoGainTarget,
	}
}

// FrameInterval is the render loop period for TargetFPS.
func (o *Options) FrameInterval() time.Duration {
	if o.TargetFPS <= 0 {
		return time.Second / DefaultTargetFPS
	}
	return time.Second / time.Duration(o.TargetFPS)
}

func (o *Options) registry() *audio.Registry {
	if o.Registry != nil {
		return o.Registry
	}
	return audio.DefaultRegistry()
}
