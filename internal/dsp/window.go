package dsp

import "gonum.org/v1/gonum/dsp/window"

// WindowFunc selects a window function to apply before an FFT.
type WindowFunc int

const (
	Hamming WindowFunc = iota
	Hann
)

// NewWindow precomputes the coefficients of a window function of the given
// length. Coefficients are tabulated once and the result should be reused
// across every frame rather than recomputed.
func NewWindow(fn WindowFunc, length int) []float64 {
	coeffs := make([]float64, length)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch fn {
	case Hann:
		window.Hann(coeffs)
	default:
		window.Hamming(coeffs)
	}
	return coeffs
}

// Apply multiplies in by the precomputed window coefficients into dst
// (which may alias in for in-place application).
func Apply(dst, in []float64, coeffs []float64) []float64 {
	if cap(dst) < len(in) {
		dst = make([]float64, len(in))
	}
	dst = dst[:len(in)]
	for i, v := range in {
		dst[i] = v * coeffs[i]
	}
	return dst
}
