package audio

import (
	"encoding/binary"
	"math"
)

// BytesToFloat32 decodes little-endian 32-bit float samples into dst and
// returns the filled prefix. dst is grown when too short.
func BytesToFloat32(dst []float32, data []byte) []float32 {
	n := len(data) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]

	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}

	return dst
}

// Float32ToBytes encodes samples as little-endian 32-bit floats into dst.
// It writes min(len(samples), len(dst)/4) samples.
func Float32ToBytes(dst []byte, samples []float32) {
	n := min(len(samples), len(dst)/4)
	for i := range n {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(samples[i]))
	}
}

// Float32ToInt16 converts samples to signed 16-bit PCM, clipping anything
// outside [-1, 1].
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case s >= 1:
			out[i] = math.MaxInt16
		case s <= -1:
			out[i] = -math.MaxInt16
		default:
			out[i] = int16(s * math.MaxInt16)
		}
	}

	return out
}

// MixDown averages interleaved frames to one sample per frame.
func MixDown(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for f := range frames {
		var sum float32
		for c := range channels {
			sum += samples[f*channels+c]
		}
		out[f] = sum / float32(channels)
	}

	return out
}

// RMS returns the root mean square of samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
