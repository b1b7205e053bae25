package audio

import (
	"math"
	"sync/atomic"
	"time"
)

// ProcessingStats holds the scalars shared between the audio callback and the
// render loop. Every field is an atomic, so neither side ever waits on the
// other; readers may observe values one block or one frame stale.
type ProcessingStats struct {
	lastProcessTime atomic.Uint64 // math.Float64bits, milliseconds
	fps             atomic.Uint64 // math.Float64bits, frames per second

	blocks         atomic.Uint64
	shortBlocks    atomic.Uint64
	effectFailures atomic.Uint64
	resizes        atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of ProcessingStats.
type StatsSnapshot struct {
	LastProcessTime float64 // milliseconds
	FPS             float64
	Blocks          uint64
	ShortBlocks     uint64
	EffectFailures  uint64
	Resizes         uint64
}

// LastProcessTime returns the wall-clock duration of the last effect chain
// pass in milliseconds.
func (s *ProcessingStats) LastProcessTime() float64 {
	return math.Float64frombits(s.lastProcessTime.Load())
}

// SetLastProcessTime stores a processing duration.
func (s *ProcessingStats) SetLastProcessTime(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	s.lastProcessTime.Store(math.Float64bits(ms))
}

// FPS returns the most recent render loop frame rate.
func (s *ProcessingStats) FPS() float64 {
	return math.Float64frombits(s.fps.Load())
}

// SetFPS stores the render loop frame rate.
func (s *ProcessingStats) SetFPS(fps float64) {
	s.fps.Store(math.Float64bits(fps))
}

// Blocks returns the number of blocks run through the effect chain.
func (s *ProcessingStats) Blocks() uint64 { return s.blocks.Load() }

// ShortBlocks returns the number of blocks passed through because their
// length was not a whole number of frames.
func (s *ProcessingStats) ShortBlocks() uint64 { return s.shortBlocks.Load() }

// EffectFailures returns the number of contained effect faults.
func (s *ProcessingStats) EffectFailures() uint64 { return s.effectFailures.Load() }

// Resizes returns how many times the block buffer had to grow.
func (s *ProcessingStats) Resizes() uint64 { return s.resizes.Load() }

// Snapshot returns a copy of all counters. Fields are loaded independently.
func (s *ProcessingStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		LastProcessTime: s.LastProcessTime(),
		FPS:             s.FPS(),
		Blocks:          s.Blocks(),
		ShortBlocks:     s.ShortBlocks(),
		EffectFailures:  s.EffectFailures(),
		Resizes:         s.Resizes(),
	}
}

// Reset zeroes every field.
func (s *ProcessingStats) Reset() {
	s.lastProcessTime.Store(0)
	s.fps.Store(0)
	s.blocks.Store(0)
	s.shortBlocks.Store(0)
	s.effectFailures.Store(0)
	s.resizes.Store(0)
}
