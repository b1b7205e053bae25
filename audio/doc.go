// Package audio implements the real-time audio path of fxloop.
//
// The package owns everything that runs inside the audio device callback:
// the interleaved sample container, the effect capability and its built-in
// variants, the ordered effect chain, and the Processor that bridges raw
// device buffers and the chain while timing each pass.
//
// # Architecture Overview
//
// Every device callback flows through the same path:
//
//	device shim → Processor.ProcessBlock → EffectChain.Process → device shim
//	                                       [Effect1 → Effect2 → …]
//
// The render loop runs independently and only touches the Processor through
// Snapshot (try-lock copy of the last processed block) and ProcessingStats
// (atomic scalars).
//
// # Effects
//
// Built-in effects, addressable by identifier through the Registry:
//
//   - PitchShiftEffect ("pitch_shift"): index-halving resample, stateless
//   - ReverbEffect ("reverb"): 100ms feedback echo with a persistent delay line
//   - GainEffect ("gain"): linear gain with saturation
//   - AutoGainEffect ("auto_gain"): automatic gain control toward a peak target
//
// Example of building a chain and a processor:
//
//	chain, err := audio.DefaultRegistry().BuildChain(
//	    []string{"pitch_shift", "reverb"},
//	    audio.EffectConfig{SampleRate: 44100, Channels: 2, CarryOver: true},
//	)
//	if err != nil {
//	    return err
//	}
//	processor, err := audio.NewProcessor(audio.DefaultProcessorConfig(), chain)
//	if err != nil {
//	    return err
//	}
//	defer processor.Close()
//
//	out := processor.ProcessBlock(deviceBytes)
//
// # Real-Time Contract
//
// ProcessBlock and ProcessSamples run in bounded time proportional to the
// block length. They do not allocate once the processor has seen its
// configured block size, never perform I/O, never log unless detailed
// logging was switched on, and never panic into the caller. Short blocks and
// failing effects are counted in ProcessingStats instead of being returned.
//
// # Thread Safety
//
//   - Processor methods are safe for concurrent use; buffer access is
//     serialized by a mutex scoped to one block
//   - EffectChain and the effects themselves are not synchronized and must
//     only be mutated through the Processor
//   - ProcessingStats fields are atomics and may be read from any goroutine
package audio
