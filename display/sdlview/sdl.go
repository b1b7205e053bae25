// Package sdlview is an SDL2 window surface for the render loop. It draws
// each channel of the latest block in its own horizontal lane, either as a
// waveform or as a magnitude spectrum.
//
// SDL must be driven from the thread that created the window; callers lock
// the main goroutine to its OS thread and run the display loop there.
package sdlview

import (
	"fmt"

	"github.com/opd-ai/fxloop/display"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

const lanePadding = 8

// Surface is an SDL window implementing display.Surface.
type Surface struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	width    int32
	height   int32
	view     display.View
	spectrum *display.Spectrum // nil unless view is display.ViewSpectrum
	points   []display.Point
	line     []sdl.Point
}

var _ display.Surface = (*Surface)(nil)

// Open initializes SDL video and creates a window drawing view.
func Open(title string, width, height int, view display.View) (*Surface, error) {
	var spectrum *display.Spectrum
	if view == display.ViewSpectrum {
		var err error
		if spectrum, err = display.NewSpectrum(display.DefaultSpectrumSize); err != nil {
			return nil, err
		}
	}

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("init SDL: %w", err)
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("create window: %w", err)
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		_ = window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "sdlview.Open",
		"width":    width,
		"height":   height,
		"view":     view,
	}).Info("SDL surface opened")

	return &Surface{
		window:   window,
		renderer: renderer,
		width:    int32(width),
		height:   int32(height),
		view:     view,
		spectrum: spectrum,
		points:   make([]display.Point, 0, width),
		line:     make([]sdl.Point, 0, width),
	}, nil
}

// Draw clears the window and draws one lane per channel.
func (s *Surface) Draw(snapshot []int16, channels int) error {
	if err := s.renderer.SetDrawColor(16, 16, 24, 255); err != nil {
		return err
	}
	if err := s.renderer.Clear(); err != nil {
		return err
	}

	if channels > 0 {
		lane := s.height / int32(channels)
		for ch := 0; ch < channels; ch++ {
			top := int32(ch)*lane + lanePadding/2
			if err := s.drawLane(snapshot, channels, ch, top, lane-lanePadding); err != nil {
				return err
			}
		}
	}

	s.renderer.Present()
	return nil
}

func (s *Surface) drawLane(snapshot []int16, channels, ch int, top, height int32) error {
	if height <= 0 {
		return nil
	}

	if err := s.renderer.SetDrawColor(60, 60, 80, 255); err != nil {
		return err
	}
	// center line for waveforms, floor line for spectra
	base := top + height/2
	if s.view == display.ViewSpectrum {
		base = top + height - 1
	}
	if err := s.renderer.DrawLine(0, base, s.width-1, base); err != nil {
		return err
	}

	if s.spectrum != nil {
		levels := s.spectrum.Compute(snapshot, channels, ch)
		s.points = display.SpectrumPoints(s.points, levels, s.width, height)
	} else {
		s.points = display.Waveform(s.points, snapshot, channels, ch, s.width, height)
	}
	if len(s.points) < 2 {
		return nil
	}
	s.line = s.line[:0]
	for _, p := range s.points {
		s.line = append(s.line, sdl.Point{X: p.X, Y: top + p.Y})
	}

	if err := s.renderer.SetDrawColor(80, 220, 120, 255); err != nil {
		return err
	}
	return s.renderer.DrawLines(s.line)
}

// Poll drains pending events and reports false on a quit request or Escape.
func (s *Surface) Poll() bool {
	running := true
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			running = false
		case *sdl.KeyboardEvent:
			if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
				running = false
			}
		}
	}
	return running
}

// Close destroys the renderer and window and shuts SDL down.
func (s *Surface) Close() error {
	var err error
	if s.renderer != nil {
		err = s.renderer.Destroy()
		s.renderer = nil
	}
	if s.window != nil {
		if werr := s.window.Destroy(); err == nil {
			err = werr
		}
		s.window = nil
	}
	sdl.Quit()
	return err
}
