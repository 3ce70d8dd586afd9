package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFFTRejectsNonPowerOfTwo(t *testing.T) {
	_, err := NewFFT(400)
	require.Error(t, err)
}

func TestFFTSineBin(t *testing.T) {
	const n = 512
	f, err := NewFFT(n)
	require.NoError(t, err)
	require.Equal(t, n/2+1, f.Len())

	// A pure sine at bin k=8 should concentrate nearly all power there.
	in := make([]float64, n)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * 8 * float64(i) / float64(n))
	}
	coeffs := f.Transform(nil, in)
	power := Power(nil, coeffs)

	var total, peak float64
	peakBin := -1
	for i, p := range power {
		total += p
		if p > peak {
			peak = p
			peakBin = i
		}
	}
	require.Equal(t, 8, peakBin)
	require.Greater(t, peak/total, 0.9)
}

func TestFFTTransformPanicsOnLengthMismatch(t *testing.T) {
	f, err := NewFFT(256)
	require.NoError(t, err)
	require.Panics(t, func() {
		f.Transform(nil, make([]float64, 128))
	})
}

func TestWindowHammingEndpoints(t *testing.T) {
	coeffs := NewWindow(Hamming, 8)
	require.Len(t, coeffs, 8)
	// Hamming never reaches zero at the edges.
	require.Greater(t, coeffs[0], 0.0)
}

func TestApplyWindowInPlace(t *testing.T) {
	coeffs := []float64{0.5, 1.0, 0.5}
	in := []float64{2, 2, 2}
	out := Apply(in, in, coeffs)
	require.Equal(t, []float64{1, 2, 1}, out)
}

func TestMelFilterBankEveryFilterPositiveOnFlatSpectrum(t *testing.T) {
	mb := NewMelFilterBank(16000, 512, 26, 0, 0)
	require.Equal(t, 26, mb.NumFilters())

	power := make([]float64, 257)
	for i := range power {
		power[i] = 1.0
	}
	energies := mb.Apply(nil, power)
	require.Len(t, energies, 26)
	for _, e := range energies {
		require.Greater(t, e, 0.0)
	}
}

func TestMelFilterBankNoBinDoubleCounted(t *testing.T) {
	// A delta spectrum (energy 1 at a single bin, 0 elsewhere) lets every
	// filter's output be read directly as that filter's weight for the bin,
	// which must never exceed 1.0.
	mb := NewMelFilterBank(16000, 512, 26, 0, 0)
	for bin := 0; bin < 257; bin++ {
		power := make([]float64, 257)
		power[bin] = 1.0
		energies := mb.Apply(nil, power)
		for _, e := range energies {
			require.LessOrEqual(t, e, 1.0+1e-9)
		}
	}
}

func TestDCTRoundTripShape(t *testing.T) {
	d := NewDCT(26, 13)
	require.Equal(t, 13, d.NumCoeffs())

	in := make([]float64, 26)
	for i := range in {
		in[i] = float64(i) + 1
	}
	out := d.Transform(nil, in)
	require.Len(t, out, 13)
}

func TestDCTPanicsOnLengthMismatch(t *testing.T) {
	d := NewDCT(26, 13)
	require.Panics(t, func() {
		d.Transform(nil, make([]float64, 10))
	})
}

func TestLifterIdentityWhenDisabled(t *testing.T) {
	coeffs := []float64{1, 2, 3}
	Lifter(coeffs, 0)
	require.Equal(t, []float64{1, 2, 3}, coeffs)
}

func TestLifterScalesNonDCTerms(t *testing.T) {
	coeffs := []float64{1, 1, 1}
	Lifter(coeffs, 22)
	require.NotEqual(t, 1.0, coeffs[1])
}
