package device

import (
	"fmt"
	"math"

	"github.com/opd-ai/fxloop/audio"
	"github.com/sirupsen/logrus"
)

// resampler converts an interleaved stream between sample rates by linear
// interpolation. It is fed consecutive chunks and keeps the last input frame
// so interpolation is continuous across chunk boundaries.
type resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64 // input frames advanced per output frame

	// position of the next output frame relative to the start of the next
	// chunk; -1 <= position < 0 refers back to last
	position float64
	last     []int16
	primed   bool
}

func newResampler(inputRate, outputRate, channels int) (*resampler, error) {
	if inputRate <= 0 || outputRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: resample %d Hz -> %d Hz, %d channels",
			audio.ErrDeviceInit, inputRate, outputRate, channels)
	}

	r := &resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		last:       make([]int16, channels),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "newResampler",
		"input_rate":  inputRate,
		"output_rate": outputRate,
		"channels":    channels,
		"ratio":       r.ratio,
	}).Info("Input will be resampled")

	return r, nil
}

// inputFrames returns how many input frames yield about outputFrames.
func (r *resampler) inputFrames(outputFrames int) int {
	n := int(math.Ceil(float64(outputFrames) * r.ratio))
	if n < 1 {
		n = 1
	}
	return n
}

// maxOutputFrames bounds the output of one chunk of inputFrames frames.
func (r *resampler) maxOutputFrames(inputFrames int) int {
	return int(math.Ceil(float64(inputFrames+1)/r.ratio)) + 1
}

// appendTo resamples input, whose length must be a whole number of frames,
// and appends the result to dst.
func (r *resampler) appendTo(dst, input []int16) []int16 {
	frames := len(input) / r.channels
	if frames == 0 {
		return dst
	}

	limit := float64(frames - 1)
	for r.position < limit {
		i := int(math.Floor(r.position))
		frac := r.position - float64(i)
		for ch := 0; ch < r.channels; ch++ {
			a := r.sample(input, i, ch)
			b := input[(i+1)*r.channels+ch]
			v := math.Round(float64(a)*(1-frac) + float64(b)*frac)
			dst = append(dst, int16(v))
		}
		r.position += r.ratio
	}

	r.position -= float64(frames)
	copy(r.last, input[len(input)-r.channels:])
	r.primed = true
	return dst
}

func (r *resampler) sample(input []int16, frame, ch int) int16 {
	if frame < 0 {
		if !r.primed {
			return input[ch]
		}
		return r.last[ch]
	}
	return input[frame*r.channels+ch]
}
