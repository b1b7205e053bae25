package audio

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultAutoGainTarget is the peak level automatic gain control steers
// toward, as a fraction of full scale.
const DefaultAutoGainTarget = 0.3

// AutoGainEffect implements automatic gain control (AGC).
//
// It follows the block peak with fast attack and slow release and moves the
// applied gain toward target/peak at a bounded rate per sample, so level
// changes take effect over several blocks instead of jumping.
type AutoGainEffect struct {
	targetLevel float64
	peakLevel   float64 // smoothed block peak, 0..1
	attackRate  float64 // gain increase per sample
	releaseRate float64 // gain decrease per sample
	minGain     float64
	maxGain     float64

	currentGain atomic.Uint64 // math.Float64bits, readable off the audio thread
}

// NewAutoGainEffect creates an AGC effect steering toward targetLevel in
// (0, 1].
func NewAutoGainEffect(targetLevel float64) (*AutoGainEffect, error) {
	if math.IsNaN(targetLevel) || targetLevel <= 0 || targetLevel > 1 {
		logrus.WithFields(logrus.Fields{
			"function":     "NewAutoGainEffect",
			"target_level": targetLevel,
		}).Error("Target level validation failed")
		return nil, fmt.Errorf("%w: auto gain target %f outside (0, 1]", ErrInvalidConfig, targetLevel)
	}

	a := &AutoGainEffect{
		targetLevel: targetLevel,
		attackRate:  0.001,
		releaseRate: 0.0001,
		minGain:     0.1,     // -20dB
		maxGain:     maxGain, // +12dB
	}
	a.currentGain.Store(math.Float64bits(1.0))

	logrus.WithFields(logrus.Fields{
		"function":     "NewAutoGainEffect",
		"target_level": a.targetLevel,
		"min_gain":     a.minGain,
		"max_gain":     a.maxGain,
	}).Info("Auto gain control effect created")

	return a, nil
}

// Process measures the block peak, updates the gain and applies it.
func (a *AutoGainEffect) Process(buf *SampleBuffer) error {
	if len(buf.Samples) == 0 {
		return nil
	}

	peak := a.blockPeak(buf.Samples)
	if peak > a.peakLevel {
		a.peakLevel += (peak - a.peakLevel) * 0.1
	} else {
		a.peakLevel += (peak - a.peakLevel) * 0.01
	}

	desired := a.maxGain
	if a.peakLevel > 0.001 {
		desired = math.Max(a.minGain, math.Min(a.maxGain, a.targetLevel/a.peakLevel))
	}

	gain := a.GetCurrentGain()
	n := float64(len(buf.Samples))
	if desired > gain {
		gain = math.Min(desired, gain+a.attackRate*n)
	} else {
		gain = math.Max(desired, gain-a.releaseRate*n)
	}
	a.currentGain.Store(math.Float64bits(gain))

	for i, sample := range buf.Samples {
		buf.Samples[i] = saturate(int32(float64(sample) * gain))
	}
	return nil
}

func (a *AutoGainEffect) blockPeak(samples []int16) float64 {
	var peak int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / 32768.0
}

// GetName returns the effect name for debugging and logging.
func (a *AutoGainEffect) GetName() string {
	return "AutoGain"
}

// GetCurrentGain returns the gain applied to the last block.
func (a *AutoGainEffect) GetCurrentGain() float64 {
	return math.Float64frombits(a.currentGain.Load())
}

// Reset returns to unity gain and forgets the measured level.
func (a *AutoGainEffect) Reset() {
	a.peakLevel = 0
	a.currentGain.Store(math.Float64bits(1.0))
}

// Close is a no-op.
func (a *AutoGainEffect) Close() error {
	return nil
}
