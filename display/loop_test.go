package display

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opd-ai/fxloop/audio"
	"github.com/opd-ai/fxloop/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource returns a growing block on success and fails when busy.
type scriptedSource struct {
	busy  []bool
	calls int
}

func (s *scriptedSource) Snapshot(dst []int16) (int, bool) {
	call := s.calls
	s.calls++
	if call < len(s.busy) && s.busy[call] {
		return 0, false
	}
	for i := range dst {
		dst[i] = int16(call)
	}
	return len(dst), true
}

type countingObserver struct{ frames int }

func (c *countingObserver) OnFrameRendered() bool {
	c.frames++
	return false
}

type recordingSurface struct {
	HeadlessSurface
	drawn   [][]int16
	failAt  int
	quitAt  int
	polls   int
	drawErr error
}

func (r *recordingSurface) Draw(snapshot []int16, channels int) error {
	if r.failAt > 0 && len(r.drawn)+1 == r.failAt {
		return r.drawErr
	}
	r.drawn = append(r.drawn, append([]int16(nil), snapshot...))
	return r.HeadlessSurface.Draw(snapshot, channels)
}

func (r *recordingSurface) Poll() bool {
	r.polls++
	return r.quitAt == 0 || r.polls < r.quitAt
}

func TestLoop_KeepsPreviousSnapshotWhenBusy(t *testing.T) {
	source := &scriptedSource{busy: []bool{true, false, true, false}}
	observer := &countingObserver{}
	surface := &recordingSurface{}

	loop, err := NewLoop(source, observer, surface, LoopConfig{Channels: 2, BlockSize: 1, MaxFrames: 4})
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, [][]int16{nil, {1, 1}, {1, 1}, {3, 3}}, surface.drawn)
	assert.Equal(t, uint64(4), loop.Frames())
	assert.Equal(t, uint64(2), loop.StaleFrames())
	assert.Equal(t, 4, observer.frames)
}

func TestLoop_StopsOnQuit(t *testing.T) {
	surface := &recordingSurface{quitAt: 3}
	loop, err := NewLoop(&scriptedSource{}, nil, surface, LoopConfig{Channels: 1, BlockSize: 4})
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, uint64(2), loop.Frames())
}

func TestLoop_StopsOnCancel(t *testing.T) {
	surface := NewHeadlessSurface()
	loop, err := NewLoop(&scriptedSource{}, nil, surface, LoopConfig{
		Channels:      1,
		BlockSize:     4,
		FrameInterval: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop ignored cancellation")
	}
	assert.Greater(t, surface.Draws(), uint64(0))
}

func TestLoop_ReturnsDrawError(t *testing.T) {
	boom := errors.New("renderer lost")
	surface := &recordingSurface{failAt: 2, drawErr: boom}
	observer := &countingObserver{}

	loop, err := NewLoop(&scriptedSource{}, observer, surface, LoopConfig{Channels: 1, BlockSize: 2})
	require.NoError(t, err)

	err = loop.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, observer.frames, "failed frame is not counted")
}

func TestNewLoop_Rejects(t *testing.T) {
	_, err := NewLoop(nil, nil, NewHeadlessSurface(), LoopConfig{Channels: 1, BlockSize: 1})
	assert.Error(t, err)
	_, err = NewLoop(&scriptedSource{}, nil, NewHeadlessSurface(), LoopConfig{Channels: 0, BlockSize: 1})
	assert.Error(t, err)
}

func TestLoop_WithProcessorAndReporter(t *testing.T) {
	p, err := audio.NewProcessor(audio.ProcessorConfig{SampleRate: 8000, Channels: 2, BlockSize: 4}, nil)
	require.NoError(t, err)
	p.ProcessSamples([]int16{16384, -32768, 0, 0, -8192, 0, 0, 0})

	var reports []stats.Report
	reporter := stats.NewReporter(p.Stats(), stats.SinkFunc(func(r stats.Report) {
		reports = append(reports, r)
	}), time.Nanosecond)

	surface := NewHeadlessSurface()
	loop, err := NewLoop(p, reporter, surface, LoopConfig{Channels: 2, BlockSize: 4, MaxFrames: 3})
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))

	peaks, n := surface.Peaks()
	assert.Equal(t, 8, n)
	assert.Equal(t, []float64{0.5, 1}, peaks)
	assert.Zero(t, loop.StaleFrames())
	assert.NotEmpty(t, reports)
	assert.Equal(t, uint64(3), surface.Draws())
}
