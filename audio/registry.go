package audio

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Effect identifiers understood by DefaultRegistry.
const (
	EffectPitchShift = "pitch_shift"
	EffectReverb     = "reverb"
	EffectGain       = "gain"
	EffectAutoGain   = "auto_gain"
)

// DefaultEffectChain is the chain built when no identifiers are configured.
var DefaultEffectChain = []string{EffectPitchShift, EffectReverb}

// EffectConfig carries the stream parameters effect factories may need.
type EffectConfig struct {
	SampleRate int
	Channels   int
	CarryOver  bool    // reverb delay line persists across blocks
	Gain       float64 // linear gain for the gain effect
	AutoGain   float64 // target peak for auto_gain; 0 means DefaultAutoGainTarget
}

// Factory builds one effect instance.
type Factory func(cfg EffectConfig) (AudioEffect, error)

// Registry maps effect identifiers to their factories.
type Registry struct {
	factories map[string]Factory
}

var errDuplicateEffect = errors.New("duplicate effect type")

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in effects.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(EffectPitchShift, func(EffectConfig) (AudioEffect, error) {
		return NewPitchShiftEffect(), nil
	})
	r.MustRegister(EffectReverb, func(cfg EffectConfig) (AudioEffect, error) {
		return NewReverbEffect(cfg.SampleRate, cfg.CarryOver)
	})
	r.MustRegister(EffectGain, func(cfg EffectConfig) (AudioEffect, error) {
		return NewGainEffect(cfg.Gain)
	})
	r.MustRegister(EffectAutoGain, func(cfg EffectConfig) (AudioEffect, error) {
		target := cfg.AutoGain
		if target == 0 {
			target = DefaultAutoGainTarget
		}
		return NewAutoGainEffect(target)
	})
	return r
}

// NormalizeEffectID maps spellings like "PitchShift", "pitch-shift" and
// "PITCH_SHIFT" to the canonical identifier "pitch_shift".
func NormalizeEffectID(id string) string {
	var b strings.Builder
	id = strings.TrimSpace(id)
	for i, r := range id {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 && id[i-1] >= 'a' && id[i-1] <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Register adds a factory for the given effect identifier.
func (r *Registry) Register(id string, factory Factory) error {
	id = NormalizeEffectID(id)
	if id == "" {
		return errors.New("empty effect type")
	}
	if factory == nil {
		return errors.New("nil factory")
	}
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("%w: %s", errDuplicateEffect, id)
	}
	r.factories[id] = factory
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic("effect registry: " + err.Error())
	}
}

// Lookup returns the factory for the given identifier, or nil.
func (r *Registry) Lookup(id string) Factory {
	return r.factories[NormalizeEffectID(id)]
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BuildChain constructs a chain with one effect per identifier, in order.
// Effects already built are closed if a later identifier fails.
func (r *Registry) BuildChain(ids []string, cfg EffectConfig) (*EffectChain, error) {
	effects := make([]AudioEffect, 0, len(ids))

	for i, id := range ids {
		factory := r.Lookup(id)
		if factory == nil {
			closeEffects(effects)
			logrus.WithFields(logrus.Fields{
				"function":  "Registry.BuildChain",
				"effect_id": id,
				"position":  i,
				"known":     r.IDs(),
			}).Error("Unknown effect identifier")
			return nil, fmt.Errorf("%w: %q at position %d", ErrUnknownEffect, id, i)
		}

		effect, err := factory(cfg)
		if err != nil {
			closeEffects(effects)
			return nil, fmt.Errorf("build effect %q at position %d: %w", id, i, err)
		}
		effects = append(effects, effect)
	}

	return NewEffectChain(effects...), nil
}

func closeEffects(effects []AudioEffect) {
	for _, effect := range effects {
		_ = effect.Close()
	}
}
