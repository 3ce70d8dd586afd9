// Package dsp provides the spectral building blocks shared by every analyzer
// in the engine: a real-input FFT kernel, window functions, a mel filter
// bank, and a DCT-II projection matrix. Nothing here is stateful across
// calls except pre-tabulated coefficients computed once at construction.
package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FFT computes a real-to-complex DFT on power-of-two windows. The twiddle
// factors and bit-reversal tables gonum precomputes in NewFFT are reused
// across every call to Transform; Transform itself performs no allocation
// when given a destination of the right length.
type FFT struct {
	size int
	fft  *fourier.FFT
}

// NewFFT constructs an FFT kernel for windows of the given size. size must be
// a power of two; this is checked once here rather than on every Transform
// call.
func NewFFT(size int) (*FFT, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("dsp: fft size must be a power of two, got %d", size)
	}
	return &FFT{
		size: size,
		fft:  fourier.NewFFT(size),
	}, nil
}

// Size returns the configured window size N.
func (f *FFT) Size() int { return f.size }

// Len returns N/2+1, the number of complex coefficients a real transform of
// this size produces.
func (f *FFT) Len() int { return f.size/2 + 1 }

// Transform computes the real-to-complex DFT of in, which must have exactly
// Size() samples. dst, if non-nil and of length Len(), is reused to avoid
// allocation; otherwise a new slice is returned. Transform panics if len(in)
// != Size(): an input-size mismatch is an internal invariant violation, not
// a recoverable engine error, and calling code is expected to have already
// validated frame length.
func (f *FFT) Transform(dst []complex128, in []float64) []complex128 {
	if len(in) != f.size {
		panic(fmt.Sprintf("dsp: fft input length mismatch: want %d, got %d", f.size, len(in)))
	}
	return f.fft.Coefficients(dst, in)
}

// Power computes the power spectrum P[k] = Re(X[k])^2 + Im(X[k])^2 from FFT
// coefficients into dst, reusing dst's backing array when it is already the
// right length.
func Power(dst []float64, coeffs []complex128) []float64 {
	if cap(dst) < len(coeffs) {
		dst = make([]float64, len(coeffs))
	}
	dst = dst[:len(coeffs)]
	for i, c := range coeffs {
		re, im := real(c), imag(c)
		dst[i] = re*re + im*im
	}
	return dst
}

// Magnitude computes |X[k]| from FFT coefficients into dst.
func Magnitude(dst []float64, coeffs []complex128) []float64 {
	if cap(dst) < len(coeffs) {
		dst = make([]float64, len(coeffs))
	}
	dst = dst[:len(coeffs)]
	for i, c := range coeffs {
		re, im := real(c), imag(c)
		dst[i] = math.Sqrt(re*re + im*im)
	}
	return dst
}
