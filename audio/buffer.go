package audio

import (
	"encoding/binary"
	"fmt"
)

// BytesPerSample is the size of one signed 16-bit sample on the wire.
const BytesPerSample = 2

// SampleBuffer holds interleaved signed 16-bit samples for a fixed number of
// channels. len(Samples) is always a multiple of Channels.
//
// The backing array is allocated once with room for a full block and reused
// across callbacks; Resize only reallocates when a block larger than any seen
// before arrives.
type SampleBuffer struct {
	Samples  []int16
	Channels int
}

// NewSampleBuffer creates a buffer sized for frames frames of channels
// interleaved samples.
func NewSampleBuffer(channels, frames int) (*SampleBuffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidConfig, channels)
	}
	if frames < 0 {
		return nil, fmt.Errorf("%w: frames cannot be negative, got %d", ErrInvalidConfig, frames)
	}
	return &SampleBuffer{
		Samples:  make([]int16, frames*channels),
		Channels: channels,
	}, nil
}

// Len returns the number of samples across all channels.
func (b *SampleBuffer) Len() int {
	return len(b.Samples)
}

// Frames returns the number of frames in the buffer.
func (b *SampleBuffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Capacity returns the number of frames the buffer can hold without
// reallocating.
func (b *SampleBuffer) Capacity() int {
	if b.Channels == 0 {
		return 0
	}
	return cap(b.Samples) / b.Channels
}

// Resize sets the buffer length to exactly frames frames. It reports whether
// the backing array had to grow, which is the only case that allocates.
func (b *SampleBuffer) Resize(frames int) bool {
	n := frames * b.Channels
	if n <= cap(b.Samples) {
		b.Samples = b.Samples[:n]
		return false
	}
	b.Samples = make([]int16, n)
	return true
}

// DecodeBytes fills the buffer from little-endian S16 bytes. The buffer must
// already be sized to len(src)/BytesPerSample samples.
func (b *SampleBuffer) DecodeBytes(src []byte) {
	for i := range b.Samples {
		b.Samples[i] = int16(binary.LittleEndian.Uint16(src[i*BytesPerSample:]))
	}
}

// EncodeBytes writes the buffer as little-endian S16 bytes into dst.
func (b *SampleBuffer) EncodeBytes(dst []byte) {
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(s))
	}
}

// Clone returns a deep copy that shares no storage with b.
func (b *SampleBuffer) Clone() *SampleBuffer {
	samples := make([]int16, len(b.Samples))
	copy(samples, b.Samples)
	return &SampleBuffer{Samples: samples, Channels: b.Channels}
}

// Channel copies the samples of one channel into dst and returns how many
// were written. Used by display surfaces to de-interleave snapshots.
func (b *SampleBuffer) Channel(ch int, dst []int16) int {
	if ch < 0 || ch >= b.Channels {
		return 0
	}
	n := 0
	for i := ch; i < len(b.Samples) && n < len(dst); i += b.Channels {
		dst[n] = b.Samples[i]
		n++
	}
	return n
}

// saturate clamps a widened sample to the signed 16-bit range.
func saturate(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
