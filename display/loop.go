// Package display runs the render loop that visualizes the most recent audio
// block and drives the frame-rate statistics.
//
// The loop never waits on the audio thread. Each frame it asks the source
// for a copy of the last processed block; when the audio thread holds the
// buffer the loop draws the copy it already has, one block stale.
package display

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Snapshotter copies the most recent processed block into dst without
// blocking. It is satisfied by *audio.Processor.
type Snapshotter interface {
	Snapshot(dst []int16) (int, bool)
}

// FrameObserver is told about every rendered frame. It is satisfied by
// *stats.Reporter.
type FrameObserver interface {
	OnFrameRendered() bool
}

// Surface draws one frame.
type Surface interface {
	// Draw renders interleaved samples with the given channel count.
	Draw(snapshot []int16, channels int) error
	// Poll handles pending window events and reports false once the user
	// asked to quit.
	Poll() bool
	Close() error
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Channels      int
	BlockSize     int           // frames; sizes the snapshot buffer
	FrameInterval time.Duration // 0 renders as fast as possible
	MaxFrames     uint64        // 0 runs until quit or cancel
}

// Loop is the render loop. It is not safe for concurrent use; run it on the
// goroutine that owns the Surface.
type Loop struct {
	source   Snapshotter
	observer FrameObserver
	surface  Surface
	config   LoopConfig

	snapshot []int16
	valid    int // samples of snapshot holding data

	frames      uint64
	staleFrames uint64
}

// NewLoop creates a loop drawing source on surface. observer may be nil.
func NewLoop(source Snapshotter, observer FrameObserver, surface Surface, cfg LoopConfig) (*Loop, error) {
	if source == nil || surface == nil {
		return nil, errors.New("display: nil source or surface")
	}
	if cfg.Channels <= 0 || cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("display: invalid loop config %+v", cfg)
	}
	if cfg.FrameInterval < 0 {
		cfg.FrameInterval = 0
	}

	return &Loop{
		source:   source,
		observer: observer,
		surface:  surface,
		config:   cfg,
		snapshot: make([]int16, cfg.Channels*cfg.BlockSize),
	}, nil
}

// Run renders frames until ctx is cancelled, the surface reports quit, or
// MaxFrames frames were drawn. Cancellation and quit are not errors; a
// draw failure ends the loop and is returned.
func (l *Loop) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if l.config.FrameInterval > 0 {
		ticker := time.NewTicker(l.config.FrameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	logrus.WithFields(logrus.Fields{
		"function":       "Loop.Run",
		"frame_interval": l.config.FrameInterval,
		"max_frames":     l.config.MaxFrames,
	}).Info("Render loop started")

	defer func() {
		logrus.WithFields(logrus.Fields{
			"function":     "Loop.Run",
			"frames":       l.frames,
			"stale_frames": l.staleFrames,
		}).Info("Render loop stopped")
	}()

	for {
		if ctx.Err() != nil || !l.surface.Poll() {
			return nil
		}

		if err := l.RenderFrame(); err != nil {
			return err
		}
		if l.config.MaxFrames > 0 && l.frames >= l.config.MaxFrames {
			return nil
		}

		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
	}
}

// RenderFrame draws one frame and notifies the observer.
func (l *Loop) RenderFrame() error {
	if n, ok := l.source.Snapshot(l.snapshot); ok {
		l.valid = n
	} else {
		l.staleFrames++
	}

	if err := l.surface.Draw(l.snapshot[:l.valid], l.config.Channels); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Loop.RenderFrame",
			"frame":    l.frames,
			"error":    err.Error(),
		}).Error("Draw failed")
		return fmt.Errorf("draw frame %d: %w", l.frames, err)
	}

	l.frames++
	if l.observer != nil {
		l.observer.OnFrameRendered()
	}
	return nil
}

// Frames returns the number of frames drawn.
func (l *Loop) Frames() uint64 { return l.frames }

// StaleFrames returns how many frames reused the previous snapshot because
// the audio thread held the buffer or nothing had been processed yet.
func (l *Loop) StaleFrames() uint64 { return l.staleFrames }
