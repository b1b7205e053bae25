// Package pa is a live full-duplex audio device on PortAudio.
//
// The host calls back on its own real-time thread with one block of captured
// input and an output block to fill. The callback copies input to output and
// runs the block processor on the output in place, so whatever the chain
// produces is what gets played.
package pa

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/opd-ai/fxloop/audio"
	"github.com/opd-ai/fxloop/device"
	"github.com/sirupsen/logrus"
)

// Config selects the stream format.
type Config struct {
	SampleRate int
	Channels   int
	BlockSize  int // frames per callback
}

// Device is a default-device duplex stream.
type Device struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	proc    device.BlockProcessor
	config  Config
	running bool
	closed  bool
}

var _ device.Device = (*Device)(nil)

// Open initializes PortAudio and opens the default input and output
// devices with cfg. Failures wrap audio.ErrDeviceInit.
func Open(proc device.BlockProcessor, cfg Config) (*Device, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: nil processor", audio.ErrDeviceInit)
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 || cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: invalid stream config %+v", audio.ErrDeviceInit, cfg)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio initialize: %v", audio.ErrDeviceInit, err)
	}

	d := &Device{proc: proc, config: cfg}
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, cfg.Channels, float64(cfg.SampleRate), cfg.BlockSize, d.callback)
	if err != nil {
		_ = portaudio.Terminate()
		logrus.WithFields(logrus.Fields{
			"function":    "pa.Open",
			"sample_rate": cfg.SampleRate,
			"channels":    cfg.Channels,
			"block_size":  cfg.BlockSize,
			"error":       err.Error(),
		}).Error("Failed to open default stream")
		return nil, fmt.Errorf("%w: open default stream: %v", audio.ErrDeviceInit, err)
	}
	d.stream = stream

	logrus.WithFields(logrus.Fields{
		"function":    "pa.Open",
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"block_size":  cfg.BlockSize,
	}).Info("PortAudio duplex stream opened")

	return d, nil
}

// callback runs on the PortAudio thread.
func (d *Device) callback(in, out []int16) {
	copy(out, in)
	d.proc.ProcessSamples(out)
}

// Start begins streaming.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("start: device closed")
	}
	if d.running {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	d.running = true
	return nil
}

// Stop stops streaming. PortAudio returns once pending buffers have been
// played, so no callback runs after Stop.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	d.running = false
	return nil
}

// Close stops the stream, closes it and terminates PortAudio.
func (d *Device) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	err := d.stream.Close()
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}

	logrus.WithFields(logrus.Fields{
		"function": "pa.Device.Close",
	}).Info("PortAudio stream closed")
	return err
}
