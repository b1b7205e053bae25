package display

import "math"

// Point is a pixel coordinate.
type Point struct {
	X, Y int32
}

// Waveform maps one channel of an interleaved block onto a width x height
// lane, full scale spanning the lane height with silence on the center line.
// At most width points are produced; longer blocks are decimated. Points are
// appended to dst[:0].
func Waveform(dst []Point, samples []int16, channels, channel int, width, height int32) []Point {
	dst = dst[:0]
	if channels <= 0 || channel < 0 || channel >= channels || width <= 0 || height <= 0 {
		return dst
	}

	frames := len(samples) / channels
	if frames == 0 {
		return dst
	}

	points := frames
	if points > int(width) {
		points = int(width)
	}

	mid := float64(height-1) / 2
	for i := 0; i < points; i++ {
		frame := i * frames / points
		v := float64(samples[frame*channels+channel]) / -math.MinInt16

		x := int32(0)
		if points > 1 {
			x = int32(i * int(width-1) / (points - 1))
		}
		y := int32(math.Round(mid - v*mid))
		dst = append(dst, Point{X: x, Y: y})
	}
	return dst
}

// Peak returns the largest absolute sample of one channel, scaled to [0, 1].
func Peak(samples []int16, channels, channel int) float64 {
	if channels <= 0 || channel < 0 || channel >= channels {
		return 0
	}
	var peak int32
	for i := channel; i < len(samples); i += channels {
		v := int32(samples[i])
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / -math.MinInt16
}
