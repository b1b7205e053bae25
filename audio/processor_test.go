package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepTimeProvider reports a fixed elapsed duration for every measurement.
type stepTimeProvider struct {
	step time.Duration
	now  time.Time
}

func (s *stepTimeProvider) Now() time.Time { return s.now }
func (s *stepTimeProvider) Since(time.Time) time.Duration { return s.step }

func newDefaultProcessor(t *testing.T) *Processor {
	t.Helper()
	cfg := DefaultProcessorConfig()
	chain, err := DefaultRegistry().BuildChain(DefaultEffectChain, EffectConfig{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		CarryOver:  true,
	})
	require.NoError(t, err)

	p, err := NewProcessor(cfg, chain)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNewProcessor_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProcessorConfig
	}{
		{name: "zero sample rate", cfg: ProcessorConfig{SampleRate: 0, Channels: 2, BlockSize: 16}},
		{name: "zero channels", cfg: ProcessorConfig{SampleRate: 44100, Channels: 0, BlockSize: 16}},
		{name: "negative block", cfg: ProcessorConfig{SampleRate: 44100, Channels: 2, BlockSize: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(tt.cfg, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestProcessorConfig_BlockDuration(t *testing.T) {
	cfg := ProcessorConfig{SampleRate: 44100, Channels: 2, BlockSize: 1024}
	assert.InDelta(t, 23.2, float64(cfg.BlockDuration())/float64(time.Millisecond), 0.1)
	assert.Equal(t, 4, cfg.FrameBytes())
}

func TestProcessor_ZeroBlockStaysZero(t *testing.T) {
	p := newDefaultProcessor(t)

	stream := make([]byte, 4096*2*BytesPerSample)
	out := p.ProcessBlock(stream)

	require.Len(t, out, len(stream))
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
	assert.Equal(t, uint64(1), p.Stats().Blocks())
	assert.Zero(t, p.Stats().ShortBlocks())
}

func TestProcessor_ShortBlockPassesThrough(t *testing.T) {
	p := newDefaultProcessor(t)

	stream := make([]byte, 4096*2*BytesPerSample+2)
	for i := range stream {
		stream[i] = byte(i)
	}
	original := append([]byte(nil), stream...)

	out := p.ProcessBlock(stream)

	assert.Equal(t, original, out)
	assert.Equal(t, uint64(1), p.Stats().ShortBlocks())
	assert.Zero(t, p.Stats().Blocks())

	// Odd sample count for stereo through the int16 entry point.
	samples := []int16{1, 2, 3}
	p.ProcessSamples(samples)
	assert.Equal(t, []int16{1, 2, 3}, samples)
	assert.Equal(t, uint64(2), p.Stats().ShortBlocks())
}

func TestProcessor_ProcessSamplesMatchesBytes(t *testing.T) {
	cfg := ProcessorConfig{SampleRate: 100, Channels: 2, BlockSize: 8}
	build := func() *Processor {
		chain, err := DefaultRegistry().BuildChain(DefaultEffectChain, EffectConfig{SampleRate: cfg.SampleRate, CarryOver: true})
		require.NoError(t, err)
		p, err := NewProcessor(cfg, chain)
		require.NoError(t, err)
		return p
	}

	samples := []int16{100, -200, 300, -400, 500, -600, 700, -800, 900, -1000, 1100, -1200, 1300, -1400, 1500, -1600}
	stream := make([]byte, len(samples)*BytesPerSample)
	(&SampleBuffer{Samples: samples, Channels: 2}).EncodeBytes(stream)

	build().ProcessBlock(stream)
	build().ProcessSamples(samples)

	decoded := &SampleBuffer{Samples: make([]int16, len(samples)), Channels: 2}
	decoded.DecodeBytes(stream)
	assert.Equal(t, samples, decoded.Samples)
}

func TestProcessor_RecordsFractionalMilliseconds(t *testing.T) {
	p := newDefaultProcessor(t)
	p.SetTimeProvider(&stepTimeProvider{step: 1500 * time.Microsecond})

	p.ProcessSamples(make([]int16, 64))

	assert.Equal(t, 1.5, p.Stats().LastProcessTime())
}

func TestProcessor_MeasuresInjectedDelay(t *testing.T) {
	const delay = 5 * time.Millisecond

	sleeper := &funcEffect{name: "sleep", process: func(*SampleBuffer) error {
		time.Sleep(delay)
		return nil
	}}
	p, err := NewProcessor(DefaultProcessorConfig(), NewEffectChain(sleeper))
	require.NoError(t, err)

	p.ProcessSamples(make([]int16, 128))

	got := p.Stats().LastProcessTime()
	assert.GreaterOrEqual(t, got, float64(delay)/float64(time.Millisecond))
}

func TestProcessor_EffectFailureCounted(t *testing.T) {
	failing := &funcEffect{name: "broken", process: func(buf *SampleBuffer) error {
		buf.Samples[0] = -1
		return errors.New("invalid internal state")
	}}
	p, err := NewProcessor(ProcessorConfig{SampleRate: 44100, Channels: 2, BlockSize: 2},
		NewEffectChain(failing, addConst("plus1", 1)))
	require.NoError(t, err)
	p.EnableDetailedLogging(true)

	samples := []int16{10, 20, 30, 40}
	p.ProcessSamples(samples)

	assert.Equal(t, []int16{11, 21, 31, 41}, samples)
	assert.Equal(t, uint64(1), p.Stats().EffectFailures())
	assert.Equal(t, uint64(1), p.Stats().Blocks())
}

func TestProcessor_GrowsForLargerBlocks(t *testing.T) {
	p, err := NewProcessor(ProcessorConfig{SampleRate: 44100, Channels: 2, BlockSize: 4}, NewEffectChain(addConst("plus1", 1)))
	require.NoError(t, err)

	samples := make([]int16, 32)
	p.ProcessSamples(samples)
	p.ProcessSamples(samples)

	assert.Equal(t, int16(2), samples[31])
	assert.Equal(t, uint64(1), p.Stats().Resizes())
}

func TestProcessor_Snapshot(t *testing.T) {
	p, err := NewProcessor(ProcessorConfig{SampleRate: 44100, Channels: 2, BlockSize: 2}, nil)
	require.NoError(t, err)

	dst := make([]int16, 4)
	_, ok := p.Snapshot(dst)
	assert.False(t, ok, "nothing processed yet")

	p.ProcessSamples([]int16{1, 2, 3, 4})

	n, ok := p.Snapshot(dst)
	require.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int16{1, 2, 3, 4}, dst)

	last, ok := p.GetLastSnapshot()
	require.True(t, ok)
	last.Samples[0] = 99
	n, _ = p.Snapshot(dst)
	assert.Equal(t, int16(1), dst[0], "GetLastSnapshot must return a copy")
	assert.Equal(t, 4, n)

	// The audio thread holding the lock must not stall the caller.
	p.mu.Lock()
	_, ok = p.Snapshot(dst)
	p.mu.Unlock()
	assert.False(t, ok)
}

func TestProcessor_ChainMutation(t *testing.T) {
	p, err := NewProcessor(ProcessorConfig{SampleRate: 44100, Channels: 1, BlockSize: 2}, nil)
	require.NoError(t, err)

	require.NoError(t, p.AddEffect(addConst("plus1", 1)))
	require.NoError(t, p.AddEffect(addConst("plus2", 2)))
	assert.Equal(t, []string{"plus1", "plus2"}, p.EffectNames())

	removed, err := p.RemoveEffect("plus1")
	require.NoError(t, err)
	assert.True(t, removed)

	samples := []int16{0, 0}
	p.ProcessSamples(samples)
	assert.Equal(t, []int16{2, 2}, samples)

	old := addConst("old", 0)
	require.NoError(t, p.SetChain(NewEffectChain(old)))
	require.NoError(t, p.SetChain(nil))
	assert.True(t, old.closed)
	assert.Empty(t, p.EffectNames())
}

func TestProcessor_Close(t *testing.T) {
	effect := addConst("plus1", 1)
	p, err := NewProcessor(ProcessorConfig{SampleRate: 44100, Channels: 1, BlockSize: 2}, NewEffectChain(effect))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, effect.closed)

	samples := []int16{5, 5}
	p.ProcessSamples(samples)
	assert.Equal(t, []int16{5, 5}, samples, "closed processor passes blocks through")

	assert.ErrorIs(t, p.AddEffect(addConst("late", 1)), ErrProcessorClosed)
	_, err = p.RemoveEffect("plus1")
	assert.ErrorIs(t, err, ErrProcessorClosed)
	assert.ErrorIs(t, p.SetChain(nil), ErrProcessorClosed)
}

func TestProcessor_ResetEffects(t *testing.T) {
	reverb, err := NewReverbEffectWithDelay(2, true)
	require.NoError(t, err)
	p, err := NewProcessor(ProcessorConfig{SampleRate: 44100, Channels: 1, BlockSize: 2}, NewEffectChain(reverb))
	require.NoError(t, err)

	p.ProcessSamples([]int16{1000, 1000})
	p.ResetEffects()

	samples := []int16{0, 0}
	p.ProcessSamples(samples)
	assert.Equal(t, []int16{0, 0}, samples)
}

func BenchmarkProcessor_ProcessBlock(b *testing.B) {
	cfg := DefaultProcessorConfig()
	chain, err := DefaultRegistry().BuildChain(DefaultEffectChain, EffectConfig{SampleRate: cfg.SampleRate, CarryOver: true})
	if err != nil {
		b.Fatal(err)
	}
	p, err := NewProcessor(cfg, chain)
	if err != nil {
		b.Fatal(err)
	}

	stream := make([]byte, cfg.BlockSize*cfg.FrameBytes())
	for i := range stream {
		stream[i] = byte(i * 31)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.ProcessBlock(stream)
	}
}
