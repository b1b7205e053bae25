// Package device provides audio device shims that drive a block processor.
//
// A shim owns the stream: it delivers captured blocks of interleaved signed
// 16-bit samples to a BlockProcessor on its own goroutine (or the host's
// audio thread) and plays or stores the processed result. Opening a device
// with a configuration it cannot honor fails with an error wrapping
// audio.ErrDeviceInit.
//
// Subpackage pa provides a live duplex shim on PortAudio. FileDevice in this
// package replays a WAV file and is used for offline runs and tests.
package device

import "errors"

// BlockProcessor transforms one block of interleaved samples in place.
// It is satisfied by *audio.Processor.
type BlockProcessor interface {
	ProcessSamples(samples []int16)
}

// Device is a running audio stream.
//
// Stop halts callbacks and returns only after the last in-flight block has
// been processed. Close stops the device if needed and releases it.
type Device interface {
	Start() error
	Stop() error
	Close() error
}

var (
	errAlreadyStarted = errors.New("device already started")
	errDeviceClosed   = errors.New("device closed")
)
