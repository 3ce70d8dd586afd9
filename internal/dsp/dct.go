package dsp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DCT computes a type-II discrete cosine transform projecting M mel log
// energies onto C cepstral coefficients. The basis matrix is built once at
// construction and reused as a dense mat.Dense multiply on every call.
type DCT struct {
	numCoeffs int
	numInputs int
	basis     *mat.Dense
}

// NewDCT builds a numCoeffs x numInputs DCT-II basis matrix with the
// normalization factor sqrt(2/numInputs).
func NewDCT(numInputs, numCoeffs int) *DCT {
	scale := math.Sqrt(2.0 / float64(numInputs))
	basis := mat.NewDense(numCoeffs, numInputs, nil)
	for k := 0; k < numCoeffs; k++ {
		for n := 0; n < numInputs; n++ {
			angle := math.Pi / float64(numInputs) * (float64(n) + 0.5) * float64(k)
			basis.Set(k, n, scale*math.Cos(angle))
		}
	}
	return &DCT{numCoeffs: numCoeffs, numInputs: numInputs, basis: basis}
}

// NumCoeffs returns the configured output dimension C.
func (d *DCT) NumCoeffs() int { return d.numCoeffs }

// Transform projects in (length numInputs) onto the C DCT-II coefficients,
// writing the result into dst.
func (d *DCT) Transform(dst []float64, in []float64) []float64 {
	if len(in) != d.numInputs {
		panic("dsp: dct input length mismatch")
	}
	x := mat.NewVecDense(d.numInputs, in)
	y := mat.NewVecDense(d.numCoeffs, nil)
	y.MulVec(d.basis, x)

	if cap(dst) < d.numCoeffs {
		dst = make([]float64, d.numCoeffs)
	}
	dst = dst[:d.numCoeffs]
	for i := 0; i < d.numCoeffs; i++ {
		dst[i] = y.AtVec(i)
	}
	return dst
}

// Lifter applies sinusoidal cepstral liftering in place:
// c'[n] = c[n] * (1 + (L/2) * sin(pi*n/L)), n = 0..len(coeffs)-1.
func Lifter(coeffs []float64, l int) {
	if l <= 0 {
		return
	}
	half := float64(l) / 2.0
	for n := range coeffs {
		coeffs[n] *= 1 + half*math.Sin(math.Pi*float64(n)/float64(l))
	}
}
