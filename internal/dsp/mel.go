package dsp

import "math"

// MelBin is one (FFT bin, triangular weight) pair contributing to a mel
// filter. Filters are stored sparsely — most FFT bins contribute to at most
// one or two filters — rather than as dense NumFilters x (N/2+1) matrices.
type MelBin struct {
	Bin    int
	Weight float64
}

// MelFilterBank is a bank of triangular filters spaced on the mel scale,
// applied to a power spectrum of length N/2+1.
type MelFilterBank struct {
	numFilters int
	bins       [][]MelBin
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// NewMelFilterBank constructs a filter bank for the given sample rate, FFT
// size, and number of filters, spanning [lowFreq, highFreq]. A highFreq of 0
// defaults to the Nyquist rate; highFreq is clamped to Nyquist regardless.
func NewMelFilterBank(sampleRate, fftSize, numFilters int, lowFreq, highFreq float64) *MelFilterBank {
	nyquist := float64(sampleRate) / 2
	if highFreq <= 0 || highFreq > nyquist {
		highFreq = nyquist
	}

	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	melPoints := make([]float64, numFilters+2)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*(highMel-lowMel)/float64(numFilters+1)
	}

	numBins := fftSize/2 + 1
	binPoints := make([]int, numFilters+2)
	for i, m := range melPoints {
		hz := melToHz(m)
		b := int(math.Floor(hz * float64(fftSize) / float64(sampleRate)))
		if b >= numBins {
			b = numBins - 1
		}
		binPoints[i] = b
	}

	bins := make([][]MelBin, numFilters)
	for i := 0; i < numFilters; i++ {
		left, center, right := binPoints[i], binPoints[i+1], binPoints[i+2]

		var filter []MelBin
		if left == center && center == right {
			// Collapsed support: still emit a single bin at full weight
			// rather than silently dropping this filter.
			filter = append(filter, MelBin{Bin: center, Weight: 1.0})
			bins[i] = filter
			continue
		}

		// Rising edge: (left, center), excluding center so it is not
		// double-counted by the falling edge below.
		if center > left {
			for b := left; b < center && b < numBins; b++ {
				filter = append(filter, MelBin{Bin: b, Weight: float64(b-left) / float64(center-left)})
			}
		}
		// Falling edge: [center, right), weight 1.0 at center down to 0 at right.
		if right > center {
			for b := center; b < right && b < numBins; b++ {
				filter = append(filter, MelBin{Bin: b, Weight: float64(right-b) / float64(right-center)})
			}
		} else if center < numBins {
			filter = append(filter, MelBin{Bin: center, Weight: 1.0})
		}
		bins[i] = filter
	}

	return &MelFilterBank{numFilters: numFilters, bins: bins}
}

// NumFilters returns the configured number of mel filters M.
func (mb *MelFilterBank) NumFilters() int { return mb.numFilters }

// Apply projects a power spectrum onto the filter bank, writing M mel
// energies into dst.
func (mb *MelFilterBank) Apply(dst []float64, power []float64) []float64 {
	if cap(dst) < mb.numFilters {
		dst = make([]float64, mb.numFilters)
	}
	dst = dst[:mb.numFilters]
	for i, filter := range mb.bins {
		var energy float64
		for _, fb := range filter {
			if fb.Bin < len(power) {
				energy += power[fb.Bin] * fb.Weight
			}
		}
		dst[i] = energy
	}
	return dst
}
