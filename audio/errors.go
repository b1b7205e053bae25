package audio

import "errors"

// Sentinel errors for audio package operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrDeviceInit indicates the audio device could not be opened with the
	// requested configuration. Fatal at startup.
	ErrDeviceInit = errors.New("audio device initialization failed")

	// ErrShortBlock indicates a block whose length is not a whole number of
	// frames. Never returned from the callback; counted in ProcessingStats.
	ErrShortBlock = errors.New("short audio block")

	// ErrEffectFailure indicates an effect returned an error or panicked while
	// processing a block. Contained at the chain level.
	ErrEffectFailure = errors.New("effect failure")

	// ErrUnknownEffect indicates an effect identifier with no registered factory.
	ErrUnknownEffect = errors.New("unknown effect")

	// ErrInvalidConfig indicates a processor or effect configuration that
	// cannot be used.
	ErrInvalidConfig = errors.New("invalid audio configuration")

	// ErrProcessorClosed indicates an operation on a closed processor.
	ErrProcessorClosed = errors.New("processor closed")
)
