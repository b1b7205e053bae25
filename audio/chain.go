package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EffectChain manages a sequence of audio effects.
//
// Effects run in insertion order on the same buffer, each one seeing the
// previous effect's output.
//
// Design decisions:
//   - A failing effect (error or panic) does not stop the chain: the buffer
//     is restored to its state before that effect and the remaining effects
//     still run, so a fault degrades to a no-op pass for that stage
//   - The rollback copy lives in a scratch buffer sized by Reserve, so the
//     steady-state path does not allocate
//   - Not synchronized; the owning Processor serializes Process and mutation
type EffectChain struct {
	effects []AudioEffect
	scratch []int16
	onFault func(index int, name string, err error)
}

// NewEffectChain creates a new audio effect chain holding effects in order.
func NewEffectChain(effects ...AudioEffect) *EffectChain {
	logrus.WithFields(logrus.Fields{
		"function":     "NewEffectChain",
		"effect_count": len(effects),
	}).Info("Creating new audio effect chain")

	chain := &EffectChain{
		effects: make([]AudioEffect, 0, len(effects)),
	}
	chain.effects = append(chain.effects, effects...)
	return chain
}

// AddEffect adds an effect to the end of the processing chain.
//
// Effects are processed in the order they are added.
func (e *EffectChain) AddEffect(effect AudioEffect) {
	logrus.WithFields(logrus.Fields{
		"function":     "EffectChain.AddEffect",
		"effect_name":  effect.GetName(),
		"new_position": len(e.effects),
	}).Info("Adding effect to audio chain")

	e.effects = append(e.effects, effect)
}

// RemoveEffect removes and closes the first effect named name.
// It reports whether an effect was removed.
func (e *EffectChain) RemoveEffect(name string) (bool, error) {
	for i, effect := range e.effects {
		if effect.GetName() != name {
			continue
		}

		e.effects = append(e.effects[:i], e.effects[i+1:]...)

		logrus.WithFields(logrus.Fields{
			"function":     "EffectChain.RemoveEffect",
			"effect_name":  name,
			"position":     i,
			"effect_count": len(e.effects),
		}).Info("Removed effect from audio chain")

		if err := effect.Close(); err != nil {
			return true, fmt.Errorf("effect %d (%s) close failed: %w", i, name, err)
		}
		return true, nil
	}
	return false, nil
}

// Reserve sizes the rollback buffer for blocks of up to samples samples.
// Call it outside the device callback; it is the only allocating step.
func (e *EffectChain) Reserve(samples int) {
	if cap(e.scratch) < samples {
		e.scratch = make([]int16, samples)
	}
}

// SetFaultHandler installs a callback invoked for every contained effect
// failure. The handler runs on the audio thread and must not block.
func (e *EffectChain) SetFaultHandler(fn func(index int, name string, err error)) {
	e.onFault = fn
}

// Process applies all effects in the chain sequentially.
//
// It returns the number of effects that failed during this pass. Failures
// are never propagated: the failing stage is rolled back and skipped.
func (e *EffectChain) Process(buf *SampleBuffer) int {
	if len(e.effects) == 0 {
		return 0
	}

	orig := buf.Samples
	n := len(orig)
	rollback := cap(e.scratch) >= n
	failures := 0

	for i, effect := range e.effects {
		if rollback {
			copy(e.scratch[:n], buf.Samples)
		}

		if err := runEffect(effect, buf); err != nil {
			failures++
			buf.Samples = orig
			if rollback {
				copy(buf.Samples, e.scratch[:n])
			}
			if e.onFault != nil {
				e.onFault(i, effect.GetName(), err)
			}
			continue
		}

		if len(buf.Samples) != n {
			// The length is part of the contract; undo the stage.
			failures++
			buf.Samples = orig
			if rollback {
				copy(buf.Samples, e.scratch[:n])
			}
			if e.onFault != nil {
				e.onFault(i, effect.GetName(), fmt.Errorf("%w: %s changed block length", ErrEffectFailure, effect.GetName()))
			}
		}
	}

	return failures
}

// runEffect calls effect.Process and converts a panic into an error.
func runEffect(effect AudioEffect, buf *SampleBuffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrEffectFailure, effect.GetName(), r)
		}
	}()

	if err := effect.Process(buf); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEffectFailure, effect.GetName(), err)
	}
	return nil
}

// Reset clears the state of every effect in the chain.
func (e *EffectChain) Reset() {
	for _, effect := range e.effects {
		effect.Reset()
	}
}

// GetEffectCount returns the number of effects in the chain.
func (e *EffectChain) GetEffectCount() int {
	return len(e.effects)
}

// GetEffectNames returns the names of all effects in the chain.
func (e *EffectChain) GetEffectNames() []string {
	names := make([]string, len(e.effects))
	for i, effect := range e.effects {
		names[i] = effect.GetName()
	}
	return names
}

// Clear removes all effects from the chain.
//
// Calls Close() on each effect to release resources properly.
func (e *EffectChain) Clear() error {
	logrus.WithFields(logrus.Fields{
		"function":     "EffectChain.Clear",
		"effect_count": len(e.effects),
	}).Info("Clearing all effects from chain")

	var errs []error

	for i, effect := range e.effects {
		if err := effect.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":     "EffectChain.Clear",
				"effect_index": i,
				"effect_name":  effect.GetName(),
				"error":        err.Error(),
			}).Error("Failed to close effect")
			errs = append(errs, fmt.Errorf("effect %d (%s) close failed: %w", i, effect.GetName(), err))
		}
	}

	e.effects = e.effects[:0]

	if len(errs) > 0 {
		return fmt.Errorf("multiple close errors: %v", errs)
	}
	return nil
}

// Close releases all effect resources.
func (e *EffectChain) Close() error {
	err := e.Clear()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "EffectChain.Close",
			"error":    err.Error(),
		}).Error("Failed to close effect chain")
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "EffectChain.Close",
		}).Info("Effect chain closed successfully")
	}
	return err
}
