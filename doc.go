// Package fxloop runs a real-time audio effects loop: blocks captured from
// an audio device pass through an ordered chain of effects and are written
// back to the device, while a render loop draws the latest block and prints
// frame rate and processing latency once per second.
//
// The package root wires the pieces together. The effect chain and the
// real-time block processor live in package audio, the once-per-second
// statistics line in package stats, device shims in package device and the
// render loop in package display.
//
// # Getting Started
//
//	options := fxloop.NewOptions()
//	options.EffectChain = []string{"pitch_shift", "reverb"}
//
//	engine, err := fxloop.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	// Hand the processor to a device shim; it runs ProcessSamples on the
//	// audio thread for every captured block.
//	dev, err := device.OpenFile(engine.Processor(), device.FileConfig{
//	    InputPath:  "in.wav",
//	    OutputPath: "out.wav",
//	    BlockSize:  options.BlockSize,
//	})
//
// # Configuration
//
// Options can be loaded from YAML:
//
//	sample_rate: 44100
//	channels: 2
//	block_size: 4096
//	effect_chain: [pitch_shift, reverb]
//	reverb_carry_over: true
//	auto_gain_target: 0.3
//	report_interval: 1s
//	view: spectrum
//
// # Shutdown
//
// Stop the device before closing the engine so no callback observes a
// closed chain mid-block. A block that still arrives after Close passes
// through unchanged.
package fxloop
