package display

import (
	"sync"
	"sync/atomic"
)

// HeadlessSurface is a Surface without a window. It keeps per-channel peak
// levels of the last drawn frame and quits when Quit is called.
type HeadlessSurface struct {
	draws atomic.Uint64
	quit  atomic.Bool

	mu    sync.Mutex
	peaks []float64
	last  int
}

// NewHeadlessSurface creates a headless surface.
func NewHeadlessSurface() *HeadlessSurface {
	return &HeadlessSurface{}
}

// Draw records the frame.
func (h *HeadlessSurface) Draw(snapshot []int16, channels int) error {
	h.mu.Lock()
	if cap(h.peaks) < channels {
		h.peaks = make([]float64, channels)
	}
	h.peaks = h.peaks[:channels]
	for ch := range h.peaks {
		h.peaks[ch] = Peak(snapshot, channels, ch)
	}
	h.last = len(snapshot)
	h.mu.Unlock()

	h.draws.Add(1)
	return nil
}

// Poll reports false after Quit.
func (h *HeadlessSurface) Poll() bool { return !h.quit.Load() }

// Quit makes the next Poll end the render loop.
func (h *HeadlessSurface) Quit() { h.quit.Store(true) }

// Close is a no-op.
func (h *HeadlessSurface) Close() error { return nil }

// Draws returns how many frames were drawn.
func (h *HeadlessSurface) Draws() uint64 { return h.draws.Load() }

// Peaks returns the per-channel peaks of the last frame and its sample count.
func (h *HeadlessSurface) Peaks() ([]float64, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.peaks...), h.last
}
