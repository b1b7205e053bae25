package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/opd-ai/fxloop/audio"
	"github.com/sirupsen/logrus"
)

// wavPCM is the WAVE format tag for integer PCM.
const wavPCM = 1

// FileConfig configures a FileDevice.
type FileConfig struct {
	InputPath  string
	OutputPath string // empty discards processed blocks
	BlockSize  int    // frames per callback

	// SampleRate is the rate delivered to the processor. A file recorded at
	// another rate is resampled. Zero uses the file's rate.
	SampleRate int
	// Channels, when non-zero, must match the file.
	Channels int

	// Paced delivers one block per block duration like a sound card would.
	// Unpaced runs as fast as the processor allows.
	Paced bool
}

// FileDevice replays a 16-bit PCM WAV file through a BlockProcessor.
//
// A single goroutine reads BlockSize frames at a time, hands them to the
// processor and appends the result to the output file. The final block is
// whatever remains of the input and may be shorter than BlockSize. When the
// file rate differs from the configured rate, blocks are resampled before
// processing and hold about BlockSize frames.
type FileDevice struct {
	proc   BlockProcessor
	config FileConfig

	input   *os.File
	decoder *wav.Decoder
	output  *os.File
	encoder *wav.Encoder

	inputRate  int
	sampleRate int
	channels   int
	resampler  *resampler

	readBuf  *goaudio.IntBuffer
	writeBuf *goaudio.IntBuffer
	block    []int16
	chunk    []int16

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
	err     error

	blocks atomic.Uint64
}

// OpenFile opens cfg.InputPath and, if set, creates cfg.OutputPath.
//
// Returns an error wrapping audio.ErrDeviceInit when the input is missing,
// not a WAV file, not 16-bit, or does not match the requested channel count.
func OpenFile(proc BlockProcessor, cfg FileConfig) (*FileDevice, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: nil processor", audio.ErrDeviceInit)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", audio.ErrDeviceInit, cfg.BlockSize)
	}

	input, err := os.Open(cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open input: %v", audio.ErrDeviceInit, err)
	}

	decoder := wav.NewDecoder(input)
	if !decoder.IsValidFile() {
		_ = input.Close()
		return nil, fmt.Errorf("%w: invalid WAV file: %s", audio.ErrDeviceInit, cfg.InputPath)
	}

	format := decoder.Format()
	if err := checkFormat(cfg, format, int(decoder.BitDepth)); err != nil {
		_ = input.Close()
		logrus.WithFields(logrus.Fields{
			"function":  "OpenFile",
			"input":     cfg.InputPath,
			"bit_depth": decoder.BitDepth,
			"error":     err.Error(),
		}).Error("Input format rejected")
		return nil, err
	}

	d := &FileDevice{
		proc:       proc,
		config:     cfg,
		input:      input,
		decoder:    decoder,
		inputRate:  format.SampleRate,
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
	}

	readFrames, blockFrames := cfg.BlockSize, cfg.BlockSize
	if cfg.SampleRate != 0 && cfg.SampleRate != format.SampleRate {
		r, err := newResampler(format.SampleRate, cfg.SampleRate, d.channels)
		if err != nil {
			_ = input.Close()
			return nil, err
		}
		d.resampler = r
		d.sampleRate = cfg.SampleRate
		readFrames = r.inputFrames(cfg.BlockSize)
		blockFrames = r.maxOutputFrames(readFrames)
	}

	outFormat := &goaudio.Format{SampleRate: d.sampleRate, NumChannels: d.channels}
	d.readBuf = &goaudio.IntBuffer{Data: make([]int, readFrames*d.channels), Format: format, SourceBitDepth: 16}
	d.writeBuf = &goaudio.IntBuffer{Data: make([]int, blockFrames*d.channels), Format: outFormat, SourceBitDepth: 16}
	d.block = make([]int16, 0, blockFrames*d.channels)

	if cfg.OutputPath != "" {
		output, err := os.Create(cfg.OutputPath)
		if err != nil {
			_ = input.Close()
			return nil, fmt.Errorf("%w: create output: %v", audio.ErrDeviceInit, err)
		}
		d.output = output
		d.encoder = wav.NewEncoder(output, d.sampleRate, 16, d.channels, wavPCM)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpenFile",
		"input":       cfg.InputPath,
		"output":      cfg.OutputPath,
		"input_rate":  d.inputRate,
		"sample_rate": d.sampleRate,
		"channels":    d.channels,
		"block_size":  cfg.BlockSize,
		"paced":       cfg.Paced,
	}).Info("File device opened")

	return d, nil
}

func checkFormat(cfg FileConfig, format *goaudio.Format, bitDepth int) error {
	switch {
	case format == nil || format.NumChannels <= 0 || format.SampleRate <= 0:
		return fmt.Errorf("%w: missing format information", audio.ErrDeviceInit)
	case bitDepth != 16:
		return fmt.Errorf("%w: %d-bit input, need 16-bit", audio.ErrDeviceInit, bitDepth)
	case cfg.SampleRate < 0:
		return fmt.Errorf("%w: sample rate %d", audio.ErrDeviceInit, cfg.SampleRate)
	case cfg.Channels != 0 && cfg.Channels != format.NumChannels:
		return fmt.Errorf("%w: input has %d channels, configured %d", audio.ErrDeviceInit, format.NumChannels, cfg.Channels)
	}
	return nil
}

// SampleRate returns the rate of the blocks delivered to the processor.
func (d *FileDevice) SampleRate() int { return d.sampleRate }

// InputSampleRate returns the rate the file was recorded at.
func (d *FileDevice) InputSampleRate() int { return d.inputRate }

// Channels returns the input channel count.
func (d *FileDevice) Channels() int { return d.channels }

// Blocks returns how many blocks have been delivered to the processor.
func (d *FileDevice) Blocks() uint64 { return d.blocks.Load() }

// Start begins delivering blocks on a new goroutine.
func (d *FileDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errDeviceClosed
	}
	if d.started {
		return errAlreadyStarted
	}
	d.started = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go d.run(d.stop, d.done)
	return nil
}

// Done is closed once the input is exhausted or the device is stopped.
// It returns nil before Start.
func (d *FileDevice) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the read or write error that ended playback, if any.
func (d *FileDevice) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Stop halts delivery and waits for the in-flight block to finish.
func (d *FileDevice) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Close stops the device, finalizes the output WAV header and closes both
// files.
func (d *FileDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if d.encoder != nil {
		errs = append(errs, d.encoder.Close())
		errs = append(errs, d.output.Close())
	}
	errs = append(errs, d.input.Close())

	logrus.WithFields(logrus.Fields{
		"function": "FileDevice.Close",
		"blocks":   d.blocks.Load(),
	}).Info("File device closed")

	return errors.Join(errs...)
}

func (d *FileDevice) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if d.config.Paced {
		period := time.Duration(d.config.BlockSize) * time.Second / time.Duration(d.sampleRate)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		more, err := d.step()
		if err != nil {
			d.fail(err)
			return
		}
		if !more {
			return
		}

		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		}
	}
}

// step reads, processes and writes one block. It reports false at the end
// of the input.
func (d *FileDevice) step() (bool, error) {
	d.readBuf.Data = d.readBuf.Data[:cap(d.readBuf.Data)]
	n, err := d.decoder.PCMBuffer(d.readBuf)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read input: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	block := d.block[:0]
	if d.resampler == nil {
		for _, v := range d.readBuf.Data[:n] {
			block = append(block, int16(v))
		}
	} else {
		// The resampler needs whole frames; a trailing partial frame is
		// dropped.
		frames := n / d.channels
		chunk := d.scratch(frames * d.channels)
		for i, v := range d.readBuf.Data[:len(chunk)] {
			chunk[i] = int16(v)
		}
		block = d.resampler.appendTo(block, chunk)
	}
	if len(block) == 0 {
		return true, nil
	}

	d.proc.ProcessSamples(block)
	d.blocks.Add(1)

	if d.encoder == nil {
		return true, nil
	}
	d.writeBuf.Data = d.writeBuf.Data[:0]
	for _, v := range block {
		d.writeBuf.Data = append(d.writeBuf.Data, int(v))
	}
	if err := d.encoder.Write(d.writeBuf); err != nil {
		return false, fmt.Errorf("write output: %w", err)
	}
	return true, nil
}

// scratch returns a reusable buffer of n samples for resampler input.
func (d *FileDevice) scratch(n int) []int16 {
	if cap(d.chunk) < n {
		d.chunk = make([]int16, n)
	}
	return d.chunk[:n]
}

func (d *FileDevice) fail(err error) {
	logrus.WithFields(logrus.Fields{
		"function": "FileDevice.run",
		"blocks":   d.blocks.Load(),
		"error":    err.Error(),
	}).Error("File playback stopped")

	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}
