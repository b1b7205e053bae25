package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Default stream parameters.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	DefaultBlockSize  = 4096 // frames per device callback
)

// ProcessorConfig fixes the stream layout for the lifetime of a Processor.
type ProcessorConfig struct {
	SampleRate int // Hz
	Channels   int // interleaved channels per frame
	BlockSize  int // expected frames per block; sizes the preallocated buffers
}

// DefaultProcessorConfig returns 44.1kHz stereo with 4096-frame blocks.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BlockSize:  DefaultBlockSize,
	}
}

// Validate checks that every field is positive.
func (c ProcessorConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidConfig, c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidConfig, c.BlockSize)
	}
	return nil
}

// FrameBytes returns the size of one interleaved S16 frame in bytes.
func (c ProcessorConfig) FrameBytes() int {
	return c.Channels * BytesPerSample
}

// BlockDuration returns the playback time of one full block, the deadline
// the device callback has to meet.
func (c ProcessorConfig) BlockDuration() time.Duration {
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// Processor bridges the audio device callback and the effect chain.
//
// It owns the block buffer and the chain, serializes access to both with a
// mutex held for exactly one block, and records how long every chain pass
// takes. One Processor is created at startup and handed to both the device
// shim (ProcessBlock / ProcessSamples) and the render loop (Snapshot, Stats).
type Processor struct {
	mu     sync.Mutex
	config ProcessorConfig
	buffer *SampleBuffer
	chain  *EffectChain
	closed bool
	filled bool // buffer holds a processed block

	stats        ProcessingStats
	timeProvider TimeProvider

	// gates every log call on the audio thread
	detailedLogging atomic.Bool
}

// NewProcessor creates a processor for cfg running chain. A nil chain is
// replaced by an empty one.
//
// Returns:
//   - *Processor: New processor with block storage preallocated
//   - error: ErrInvalidConfig if cfg is unusable
func NewProcessor(cfg ProcessorConfig, chain *EffectChain) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewProcessor",
			"error":    err.Error(),
		}).Error("Processor configuration rejected")
		return nil, err
	}

	buffer, err := NewSampleBuffer(cfg.Channels, cfg.BlockSize)
	if err != nil {
		return nil, err
	}

	if chain == nil {
		chain = NewEffectChain()
	}
	chain.Reserve(buffer.Len())

	p := &Processor{
		config:       cfg,
		buffer:       buffer,
		chain:        chain,
		timeProvider: DefaultTimeProvider{},
	}
	chain.SetFaultHandler(p.onEffectFault)

	logrus.WithFields(logrus.Fields{
		"function":       "NewProcessor",
		"sample_rate":    cfg.SampleRate,
		"channels":       cfg.Channels,
		"block_size":     cfg.BlockSize,
		"block_duration": cfg.BlockDuration(),
		"effects":        chain.GetEffectNames(),
	}).Info("Audio processor created successfully")

	return p, nil
}

// ProcessBlock runs one device block of little-endian S16 interleaved bytes
// through the effect chain, writing the result back into stream, which it
// returns.
//
// Real-time contract: bounded time, no I/O, no allocation after the first
// block of the configured size, no panics. A stream whose length is not a
// whole number of frames is returned unchanged and counted as a short
// block. After Close every block passes through unchanged.
func (p *Processor) ProcessBlock(stream []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.recoverBlock()

	if p.closed {
		return stream
	}

	frameBytes := p.config.FrameBytes()
	if len(stream)%frameBytes != 0 {
		p.shortBlock(len(stream) / BytesPerSample)
		return stream
	}

	p.resize(len(stream) / frameBytes)
	p.buffer.DecodeBytes(stream)
	p.runChain()
	p.buffer.EncodeBytes(stream)

	return stream
}

// ProcessSamples runs one block of interleaved samples through the effect
// chain in place. It follows the same contract as ProcessBlock.
func (p *Processor) ProcessSamples(samples []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.recoverBlock()

	if p.closed {
		return
	}

	if len(samples)%p.config.Channels != 0 {
		p.shortBlock(len(samples))
		return
	}

	p.resize(len(samples) / p.config.Channels)
	copy(p.buffer.Samples, samples)
	p.runChain()
	copy(samples, p.buffer.Samples)
}

// runChain times one pass of the chain over the block buffer. Caller holds mu.
func (p *Processor) runChain() {
	start := p.timeProvider.Now()
	failures := p.chain.Process(p.buffer)
	elapsed := p.timeProvider.Since(start)

	p.stats.SetLastProcessTime(elapsed)
	p.stats.blocks.Add(1)
	if failures > 0 {
		p.stats.effectFailures.Add(uint64(failures))
	}
	p.filled = true

	if p.detailedLogging.Load() {
		logrus.WithFields(logrus.Fields{
			"function":     "Processor.ProcessBlock",
			"frames":       p.buffer.Frames(),
			"elapsed_ms":   p.stats.LastProcessTime(),
			"failures":     failures,
			"deadline_ms":  float64(p.config.BlockDuration()) / float64(time.Millisecond),
			"effect_count": p.chain.GetEffectCount(),
		}).Trace("Processed audio block")
	}
}

// resize fits the block buffer to frames, growing the chain's rollback
// storage alongside it. Caller holds mu.
func (p *Processor) resize(frames int) {
	if p.buffer.Resize(frames) {
		p.chain.Reserve(p.buffer.Len())
		p.stats.resizes.Add(1)
		if p.detailedLogging.Load() {
			logrus.WithFields(logrus.Fields{
				"function":   "Processor.resize",
				"frames":     frames,
				"block_size": p.config.BlockSize,
			}).Warn("Block larger than configured size; buffer reallocated")
		}
	}
}

func (p *Processor) shortBlock(samples int) {
	p.stats.shortBlocks.Add(1)
	if p.detailedLogging.Load() {
		logrus.WithFields(logrus.Fields{
			"function": "Processor.shortBlock",
			"samples":  samples,
			"channels": p.config.Channels,
			"error":    ErrShortBlock.Error(),
		}).Warn("Short block passed through unchanged")
	}
}

// recoverBlock keeps a fault from unwinding into the device callback. The
// raw stream is only written after the chain completes, so a recovered
// block is delivered unchanged.
func (p *Processor) recoverBlock() {
	if r := recover(); r != nil {
		p.stats.effectFailures.Add(1)
		if p.detailedLogging.Load() {
			logrus.WithFields(logrus.Fields{
				"function": "Processor.recoverBlock",
				"panic":    fmt.Sprint(r),
			}).Error("Recovered fault in audio block")
		}
	}
}

func (p *Processor) onEffectFault(index int, name string, err error) {
	if p.detailedLogging.Load() {
		logrus.WithFields(logrus.Fields{
			"function":     "Processor.onEffectFault",
			"effect_index": index,
			"effect_name":  name,
			"error":        err.Error(),
		}).Warn("Effect failed; stage skipped for this block")
	}
}

// Snapshot copies the last processed block into dst without waiting for the
// audio thread. It returns the number of samples copied and false when the
// lock is currently held or no block has been processed yet; callers keep
// drawing their previous copy in that case.
func (p *Processor) Snapshot(dst []int16) (int, bool) {
	if !p.mu.TryLock() {
		return 0, false
	}
	defer p.mu.Unlock()

	if !p.filled {
		return 0, false
	}
	return copy(dst, p.buffer.Samples), true
}

// GetLastSnapshot returns a copy of the last processed block, blocking until
// the current block (if any) finishes. Intended for tools and tests; the
// render loop should prefer Snapshot.
func (p *Processor) GetLastSnapshot() (*SampleBuffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.filled {
		return nil, false
	}
	return p.buffer.Clone(), true
}

// AddEffect appends effect to the chain between blocks.
func (p *Processor) AddEffect(effect AudioEffect) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProcessorClosed
	}
	p.chain.AddEffect(effect)
	return nil
}

// RemoveEffect removes and closes the first effect named name.
func (p *Processor) RemoveEffect(name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false, ErrProcessorClosed
	}
	return p.chain.RemoveEffect(name)
}

// SetChain replaces the effect chain, closing the previous one.
func (p *Processor) SetChain(chain *EffectChain) error {
	if chain == nil {
		chain = NewEffectChain()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProcessorClosed
	}

	chain.Reserve(cap(p.buffer.Samples))
	chain.SetFaultHandler(p.onEffectFault)
	old := p.chain
	p.chain = chain

	logrus.WithFields(logrus.Fields{
		"function": "Processor.SetChain",
		"effects":  chain.GetEffectNames(),
	}).Info("Effect chain replaced")

	return old.Close()
}

// ResetEffects clears the delay lines of all stateful effects.
func (p *Processor) ResetEffects() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chain.Reset()
}

// EffectNames returns the names of the effects in application order.
func (p *Processor) EffectNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chain.GetEffectNames()
}

// Stats returns the shared statistics. Safe to read from any goroutine.
func (p *Processor) Stats() *ProcessingStats {
	return &p.stats
}

// Config returns the stream configuration.
func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// SetTimeProvider sets the time provider for deterministic testing.
// Passing nil restores DefaultTimeProvider.
func (p *Processor) SetTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	p.mu.Lock()
	p.timeProvider = tp
	p.mu.Unlock()
}

// EnableDetailedLogging turns per-block tracing on the audio thread on or
// off. It should stay off in production; logging can block on I/O.
func (p *Processor) EnableDetailedLogging(enabled bool) {
	p.detailedLogging.Store(enabled)

	logrus.WithFields(logrus.Fields{
		"function": "Processor.EnableDetailedLogging",
		"enabled":  enabled,
	}).Info("Detailed logging configuration updated")
}

// IsDetailedLoggingEnabled returns true if detailed logging is enabled.
func (p *Processor) IsDetailedLoggingEnabled() bool {
	return p.detailedLogging.Load()
}

// Close stops processing and releases the effect chain. The device must be
// stopped first; blocks arriving afterwards pass through unchanged.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	logrus.WithFields(logrus.Fields{
		"function":        "Processor.Close",
		"blocks":          p.stats.Blocks(),
		"short_blocks":    p.stats.ShortBlocks(),
		"effect_failures": p.stats.EffectFailures(),
	}).Info("Closing audio processor")

	return p.chain.Close()
}
