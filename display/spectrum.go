package display

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// View selects what a window surface draws for each channel.
type View string

// Supported views.
const (
	ViewWaveform View = "waveform"
	ViewSpectrum View = "spectrum"
)

// ParseView accepts a view name case-insensitively. Empty means
// ViewWaveform.
func ParseView(name string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(name))) {
	case "", ViewWaveform:
		return ViewWaveform, nil
	case ViewSpectrum:
		return ViewSpectrum, nil
	}
	return "", fmt.Errorf("display: unknown view %q", name)
}

// Spectrum analyzer limits.
const (
	DefaultSpectrumSize = 1024
	SpectrumFloorDB     = -130.0
)

// Spectrum computes Hann-windowed magnitude spectra in dBFS of one channel
// of an interleaved block. All storage is allocated by NewSpectrum, so
// Compute can run every frame.
//
// Blocks longer than the analysis size use their most recent frames;
// shorter blocks are zero-padded.
type Spectrum struct {
	fft        *fourier.FFT
	size       int
	window     []float64
	windowGain float64 // mean window coefficient, undoes the window's attenuation
	input      []float64
	coeffs     []complex128
	db         []float64
}

// NewSpectrum creates an analyzer over size frames.
func NewSpectrum(size int) (*Spectrum, error) {
	if size < 2 {
		return nil, fmt.Errorf("display: spectrum size %d too small", size)
	}

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hann(coeffs)

	sum := 0.0
	for _, w := range coeffs {
		sum += w
	}

	s := &Spectrum{
		fft:        fourier.NewFFT(size),
		size:       size,
		window:     coeffs,
		windowGain: sum / float64(size),
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
		db:         make([]float64, size/2+1),
	}
	for i := range s.db {
		s.db[i] = SpectrumFloorDB
	}
	return s, nil
}

// Size returns the analysis length in frames.
func (s *Spectrum) Size() int { return s.size }

// Bins returns the number of frequency bins, size/2+1.
func (s *Spectrum) Bins() int { return len(s.db) }

// Compute analyzes one channel of samples and returns the level of every bin
// in dB relative to full scale, clamped at SpectrumFloorDB. A full-scale sine
// centered on a bin reads 0 dB there. The returned slice is reused by the
// next call.
func (s *Spectrum) Compute(samples []int16, channels, channel int) []float64 {
	if channels <= 0 || channel < 0 || channel >= channels {
		for i := range s.db {
			s.db[i] = SpectrumFloorDB
		}
		return s.db
	}

	frames := len(samples) / channels
	start := 0
	if frames > s.size {
		start = frames - s.size
	}
	n := frames - start
	for i := 0; i < s.size; i++ {
		v := 0.0
		if i < n {
			v = float64(samples[(start+i)*channels+channel]) / -math.MinInt16
		}
		s.input[i] = v * s.window[i]
	}

	s.coeffs = s.fft.Coefficients(s.coeffs, s.input)

	const eps = 1e-12
	norm := float64(s.size) * s.windowGain
	last := len(s.db) - 1
	for k, c := range s.coeffs {
		mag := cmplx.Abs(c) / norm
		if k > 0 && k < last {
			// energy of the mirrored negative frequency
			mag *= 2
		}
		s.db[k] = math.Max(SpectrumFloorDB, 20*math.Log10(math.Max(eps, mag)))
	}
	return s.db
}

// SpectrumPoints maps dB levels onto a width x height lane: bins spread
// linearly from left to right, 0 dB at the top and SpectrumFloorDB at the
// bottom. At most width points are produced; when there are more bins than
// columns each point takes the loudest bin it covers. Points are appended to
// dst[:0].
func SpectrumPoints(dst []Point, levels []float64, width, height int32) []Point {
	dst = dst[:0]
	if len(levels) == 0 || width <= 0 || height <= 0 {
		return dst
	}

	points := len(levels)
	if points > int(width) {
		points = int(width)
	}

	for i := 0; i < points; i++ {
		lo := i * len(levels) / points
		hi := (i + 1) * len(levels) / points
		level := SpectrumFloorDB
		for _, v := range levels[lo:hi] {
			level = math.Max(level, v)
		}
		level = math.Min(0, level)

		x := int32(0)
		if points > 1 {
			x = int32(i * int(width-1) / (points - 1))
		}
		y := int32(math.Round(level / SpectrumFloorDB * float64(height-1)))
		dst = append(dst, Point{X: x, Y: y})
	}
	return dst
}
