package audio

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// AudioEffect defines the interface for audio processing effects.
//
// Effects transform a SampleBuffer in place. They run inside the device
// callback, so Process must finish in time proportional to the buffer
// length, must not block, and must not allocate; any storage an effect
// needs is allocated by its constructor.
type AudioEffect interface {
	// Process applies the effect to buf in place without changing its length.
	Process(buf *SampleBuffer) error

	// GetName returns a human-readable name for the effect
	GetName() string

	// Reset clears any state carried between blocks
	Reset()

	// Close releases any resources used by the effect
	Close() error
}

// errEffectClosed is returned by stateful effects used after Close.
var errEffectClosed = errors.New("effect used after close")

// PitchShiftEffect raises pitch by index halving: out[i] = in[i/2].
//
// This is an illustrative transform, not a pitch shifter: it compresses the
// first half of the block over the whole block. Indices are taken over the
// flat interleaved buffer, so on multi-channel audio neighbouring channels
// are folded into each other.
//
// The loop runs from the last index down so each read of index i/2 sees the
// input value, not one already overwritten in this pass.
type PitchShiftEffect struct{}

// NewPitchShiftEffect creates a pitch shift effect.
func NewPitchShiftEffect() *PitchShiftEffect {
	logrus.WithFields(logrus.Fields{
		"function": "NewPitchShiftEffect",
	}).Info("Pitch shift effect created")

	return &PitchShiftEffect{}
}

// Process applies index halving to buf in place.
func (p *PitchShiftEffect) Process(buf *SampleBuffer) error {
	s := buf.Samples
	for i := len(s) - 1; i > 0; i-- {
		s[i] = s[i/2]
	}
	return nil
}

// GetName returns the effect name for debugging and logging.
func (p *PitchShiftEffect) GetName() string {
	return "PitchShift"
}

// Reset is a no-op; the effect is stateless.
func (p *PitchShiftEffect) Reset() {}

// Close releases effect resources (no-op for pitch shift).
func (p *PitchShiftEffect) Close() error {
	return nil
}

// ReverbEffect implements a single-tap feedback echo.
//
// For each sample: out[i] = in[i] + out[i-d]/2, where d is the delay in
// samples (sample rate / 10, i.e. 100ms of flat interleaved samples) and
// out[i-d] is the already-processed value, which gives an infinitely
// decaying echo rather than a single repeat.
//
// Design decisions:
//   - Saturating addition: sums outside the int16 range clamp to -32768 or
//     32767 instead of wrapping
//   - out[i-d]/2 uses integer division, truncating toward zero
//   - The last d outputs live in a ring buffer owned by the effect, so with
//     carry-over enabled the echo continues across block boundaries; with
//     carry-over disabled the ring is cleared at the start of every block
type ReverbEffect struct {
	ring      []int16
	pos       int
	delay     int
	carryOver bool
}

// NewReverbEffect creates a reverb effect for the given sample rate.
//
// Parameters:
//   - sampleRate: Sample rate in Hz, used to derive the 100ms delay
//   - carryOver: Keep the delay line across blocks
//
// Returns:
//   - *ReverbEffect: New reverb effect instance
//   - error: Validation error if the delay would be empty
func NewReverbEffect(sampleRate int, carryOver bool) (*ReverbEffect, error) {
	delay := sampleRate / 10
	return NewReverbEffectWithDelay(delay, carryOver)
}

// NewReverbEffectWithDelay creates a reverb effect with an explicit delay in
// samples.
func NewReverbEffectWithDelay(delaySamples int, carryOver bool) (*ReverbEffect, error) {
	if delaySamples <= 0 {
		logrus.WithFields(logrus.Fields{
			"function":      "NewReverbEffectWithDelay",
			"delay_samples": delaySamples,
			"error":         "delay must be positive",
		}).Error("Reverb validation failed")
		return nil, fmt.Errorf("%w: reverb delay must be positive: %d", ErrInvalidConfig, delaySamples)
	}

	logrus.WithFields(logrus.Fields{
		"function":      "NewReverbEffectWithDelay",
		"delay_samples": delaySamples,
		"carry_over":    carryOver,
	}).Info("Reverb effect created")

	return &ReverbEffect{
		ring:      make([]int16, delaySamples),
		delay:     delaySamples,
		carryOver: carryOver,
	}, nil
}

// Process applies the feedback echo to buf in place.
func (r *ReverbEffect) Process(buf *SampleBuffer) error {
	if r.ring == nil {
		return errEffectClosed
	}
	if !r.carryOver {
		r.Reset()
	}

	ring := r.ring
	pos := r.pos
	for i, sample := range buf.Samples {
		out := saturate(int32(sample) + int32(ring[pos]/2))
		buf.Samples[i] = out
		ring[pos] = out
		pos++
		if pos == len(ring) {
			pos = 0
		}
	}
	r.pos = pos

	return nil
}

// GetName returns the effect name for debugging and logging.
func (r *ReverbEffect) GetName() string {
	return "Reverb"
}

// DelaySamples returns the feedback delay in samples.
func (r *ReverbEffect) DelaySamples() int {
	return r.delay
}

// CarryOver reports whether the delay line persists across blocks.
func (r *ReverbEffect) CarryOver() bool {
	return r.carryOver
}

// Reset silences the delay line.
func (r *ReverbEffect) Reset() {
	for i := range r.ring {
		r.ring[i] = 0
	}
	r.pos = 0
}

// Close releases the delay line. Processing after Close fails.
func (r *ReverbEffect) Close() error {
	logrus.WithFields(logrus.Fields{
		"function":      "ReverbEffect.Close",
		"delay_samples": r.delay,
	}).Debug("Closing reverb effect")

	r.ring = nil
	r.pos = 0
	return nil
}

// GainEffect implements basic audio gain (volume) control.
//
// Gain values: 0.0 = silence, 1.0 = no change, >1.0 = amplification.
// Products outside the int16 range saturate. The gain is stored atomically
// so SetGain may be called from a control goroutine while the device
// callback is processing.
type GainEffect struct {
	gain atomic.Uint64 // math.Float64bits of the linear multiplier
}

// maxGain is the largest accepted linear gain (+12dB).
const maxGain = 4.0

// NewGainEffect creates a new gain control effect.
//
// Parameters:
//   - gain: Linear gain multiplier (0.0 = silence, 1.0 = unity, 2.0 = +6dB)
//
// Returns:
//   - *GainEffect: New gain effect instance
//   - error: Validation error if gain is invalid
func NewGainEffect(gain float64) (*GainEffect, error) {
	if err := validateGain("NewGainEffect", gain); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewGainEffect",
		"gain":     gain,
	}).Info("Gain effect created successfully")

	g := &GainEffect{}
	g.gain.Store(math.Float64bits(gain))
	return g, nil
}

func validateGain(function string, gain float64) error {
	if math.IsNaN(gain) || gain < 0.0 {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"gain":     gain,
			"error":    "gain cannot be negative",
		}).Error("Gain validation failed")
		return fmt.Errorf("%w: gain cannot be negative: %f", ErrInvalidConfig, gain)
	}
	if gain > maxGain {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"gain":     gain,
			"error":    "gain too high (max 4.0)",
		}).Error("Gain validation failed")
		return fmt.Errorf("%w: gain too high (max 4.0): %f", ErrInvalidConfig, gain)
	}
	return nil
}

// Process multiplies each sample by the gain factor with saturation.
func (g *GainEffect) Process(buf *SampleBuffer) error {
	gain := g.GetGain()
	if gain == 1.0 {
		return nil
	}
	for i, sample := range buf.Samples {
		v := float64(sample) * gain
		switch {
		case v > 32767.0:
			buf.Samples[i] = 32767
		case v < -32768.0:
			buf.Samples[i] = -32768
		default:
			buf.Samples[i] = int16(v)
		}
	}
	return nil
}

// GetName returns the effect name for debugging and logging.
func (g *GainEffect) GetName() string {
	return fmt.Sprintf("Gain(%.2f)", g.GetGain())
}

// SetGain updates the gain value during runtime.
func (g *GainEffect) SetGain(gain float64) error {
	if err := validateGain("GainEffect.SetGain", gain); err != nil {
		return err
	}

	old := g.GetGain()
	g.gain.Store(math.Float64bits(gain))

	logrus.WithFields(logrus.Fields{
		"function": "GainEffect.SetGain",
		"old_gain": old,
		"new_gain": gain,
	}).Info("Gain effect value updated successfully")

	return nil
}

// GetGain returns the current gain value.
func (g *GainEffect) GetGain() float64 {
	return math.Float64frombits(g.gain.Load())
}

// Reset is a no-op; gain carries no per-block state.
func (g *GainEffect) Reset() {}

// Close releases effect resources (no-op for gain effect).
func (g *GainEffect) Close() error {
	return nil
}
