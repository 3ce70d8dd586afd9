// Package sample provides the small set of guarantees the engine makes about
// raw audio before it enters the analysis pipeline: every value finite, every
// multi-channel buffer downmixed to mono.
package sample

import "math"

// Finite reports whether every value in buf is finite (no NaN, no ±Inf).
// The engine never lets a chunk past the input stage that fails this check.
func Finite(buf []float32) bool {
	for _, v := range buf {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// DownmixMean averages interleaved multi-channel samples to mono by
// arithmetic mean. channels must be >= 1; a channels of 1 returns interleaved
// unchanged (as a copy).
func DownmixMean(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
