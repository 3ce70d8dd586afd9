// Package harmonic derives spectral-shape and harmonic-structure features
// (centroid, spread, rolloff, flatness, harmonic peaks, formant candidates,
// and tonal-quality heuristics) from a Hann-windowed magnitude spectrum.
package harmonic

import (
	"math"

	"github.com/huntmaster/callcoach/internal/dsp"
)

// Config holds the fixed parameters of one analyzer instance.
type Config struct {
	SampleRate      int
	FFTSize         int
	MinFreq         float64
	MaxFreq         float64
	MaxHarmonics    int     // H_max
	HarmonicFrac    float64 // amplitude fraction of fundamental required to accept a harmonic
	MaxFormants     int     // F
	RolloffFraction float64 // defaults to 0.85
	ConfidenceGate  float64 // is_harmonic threshold on fundamental confidence
}

// Harmonic is one accepted overtone.
type Harmonic struct {
	Order     int
	Frequency float64
	Amplitude float64
}

// Profile is a single analysis snapshot.
type Profile struct {
	Centroid    float64
	Spread      float64
	Rolloff     float64
	Flatness    float64
	Fundamental float64
	Confidence  float64
	Harmonics   []Harmonic
	Formants    []float64

	Brightness float64
	Resonance  float64
	Rasp       float64

	IsHarmonic bool
}

// Analyzer runs the FFT-based spectral analysis. Not safe for concurrent
// use; one Analyzer belongs to one session.
type Analyzer struct {
	cfg    Config
	window []float64
	fft    *dsp.FFT

	windowed []float64
	coeffs   []complex128
	mag      []float64
	envelope []float64
}

// New builds an Analyzer with a precomputed Hann window and FFT plan.
func New(cfg Config) (*Analyzer, error) {
	if cfg.RolloffFraction <= 0 {
		cfg.RolloffFraction = 0.85
	}
	fft, err := dsp.NewFFT(cfg.FFTSize)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		cfg:    cfg,
		window: dsp.NewWindow(dsp.Hann, cfg.FFTSize),
		fft:    fft,
	}, nil
}

func (a *Analyzer) binFreq(bin int) float64 {
	return float64(bin) * float64(a.cfg.SampleRate) / float64(a.cfg.FFTSize)
}

// Analyze runs the spectral analysis on a window of at least FFTSize
// samples (only the first FFTSize are used).
func (a *Analyzer) Analyze(window []float32) Profile {
	n := a.cfg.FFTSize
	in := make([]float64, n)
	for i := 0; i < n && i < len(window); i++ {
		in[i] = float64(window[i])
	}

	a.windowed = dsp.Apply(a.windowed, in, a.window)
	a.coeffs = a.fft.Transform(a.coeffs, a.windowed)
	a.mag = dsp.Magnitude(a.mag, a.coeffs)
	a.envelope = smoothEnvelope(a.envelope, a.mag)

	return a.profileFromMagnitude(a.mag)
}

func (a *Analyzer) profileFromMagnitude(mag []float64) Profile {
	var p Profile

	var sumMag, sumFMag float64
	for k, m := range mag {
		f := a.binFreq(k)
		sumMag += m
		sumFMag += f * m
	}
	if sumMag > 0 {
		p.Centroid = sumFMag / sumMag
	}

	var sumSpread float64
	for k, m := range mag {
		f := a.binFreq(k)
		d := f - p.Centroid
		sumSpread += d * d * m
	}
	if sumMag > 0 {
		p.Spread = math.Sqrt(sumSpread / sumMag)
	}

	target := a.cfg.RolloffFraction * sumMag
	var cum float64
	for k, m := range mag {
		cum += m
		if cum >= target {
			p.Rolloff = a.binFreq(k)
			break
		}
	}

	p.Flatness = flatness(mag)

	fundBin, fundAmp := findPeak(mag, a.binIndex(a.cfg.MinFreq), a.binIndex(a.cfg.MaxFreq))
	if fundBin >= 0 {
		p.Fundamental = a.binFreq(fundBin)
		p.Confidence = normalizedPeakConfidence(mag, fundBin)

		searchWindow := 2
		for h := 2; h <= a.cfg.MaxHarmonics; h++ {
			target := fundBin * h
			lo, hi := target-searchWindow, target+searchWindow
			bin, amp := findPeak(mag, lo, hi)
			if bin < 0 {
				continue
			}
			if amp >= a.cfg.HarmonicFrac*fundAmp {
				p.Harmonics = append(p.Harmonics, Harmonic{
					Order:     h,
					Frequency: a.binFreq(bin),
					Amplitude: amp,
				})
			}
		}
	}

	p.Formants = pickFormants(a.envelope, a.binIndex(a.cfg.MinFreq), a.binIndex(a.cfg.MaxFreq), a.cfg.MaxFormants, a.binFreqFunc())

	p.Brightness = brightness(mag, a.binIndex(float64(a.cfg.SampleRate)/4))
	p.Resonance = resonance(p.Harmonics, fundAmp)
	p.Rasp = rasp(mag, p.Harmonics)

	p.IsHarmonic = p.Confidence > a.cfg.ConfidenceGate && len(p.Harmonics) > 0
	return p
}

func (a *Analyzer) binIndex(freq float64) int {
	return int(freq * float64(a.cfg.FFTSize) / float64(a.cfg.SampleRate))
}

func (a *Analyzer) binFreqFunc() func(int) float64 { return a.binFreq }

func clampBin(b, lo, hi, n int) int {
	if b < lo {
		b = lo
	}
	if b > hi {
		b = hi
	}
	if b < 0 {
		b = 0
	}
	if b >= n {
		b = n - 1
	}
	return b
}

// findPeak locates the index of the maximum magnitude within [lo, hi]
// (inclusive, clamped to the slice bounds). Returns (-1, 0) if the range is
// empty.
func findPeak(mag []float64, lo, hi int) (int, float64) {
	lo = clampBin(lo, 0, len(mag)-1, len(mag))
	hi = clampBin(hi, 0, len(mag)-1, len(mag))
	if lo > hi || len(mag) == 0 {
		return -1, 0
	}
	best := lo
	for k := lo; k <= hi; k++ {
		if mag[k] > mag[best] {
			best = k
		}
	}
	return best, mag[best]
}

func normalizedPeakConfidence(mag []float64, bin int) float64 {
	var sum float64
	for _, m := range mag {
		sum += m
	}
	if sum == 0 {
		return 0
	}
	c := mag[bin] / sum * float64(len(mag))
	if c > 1 {
		c = 1
	}
	return c
}

func flatness(mag []float64) float64 {
	var logSum, sum float64
	n := 0
	for _, m := range mag {
		if m <= 0 {
			continue
		}
		logSum += math.Log(m)
		sum += m
		n++
	}
	if n == 0 || sum == 0 {
		return 0
	}
	geoMean := math.Exp(logSum / float64(n))
	arithMean := sum / float64(n)
	return geoMean / arithMean
}

// envelopeRadius is the half-width of the moving average that turns the
// raw magnitude spectrum into the spectral envelope formant picking runs
// over. The raw spectrum is bin-to-bin jagged, so a local-max test on it
// fires on noise and window sidelobes rather than resonances.
const envelopeRadius = 3

// smoothEnvelope computes the spectral envelope as a centered moving
// average of the magnitude spectrum, shrinking the window at the edges.
func smoothEnvelope(dst, mag []float64) []float64 {
	if cap(dst) < len(mag) {
		dst = make([]float64, len(mag))
	}
	dst = dst[:len(mag)]
	for k := range mag {
		lo, hi := k-envelopeRadius, k+envelopeRadius
		if lo < 0 {
			lo = 0
		}
		if hi > len(mag)-1 {
			hi = len(mag) - 1
		}
		var sum float64
		for i := lo; i <= hi; i++ {
			sum += mag[i]
		}
		dst[k] = sum / float64(hi-lo+1)
	}
	return dst
}

// formantFloorFrac gates formant candidates: envelope peaks below this
// fraction of the in-range envelope maximum are noise floor, not
// resonances.
const formantFloorFrac = 0.1

// pickFormants peak-picks local maxima of the smoothed spectral envelope
// within [lo, hi].
func pickFormants(env []float64, lo, hi, maxFormants int, binFreq func(int) float64) []float64 {
	lo = clampBin(lo, 0, len(env)-1, len(env))
	hi = clampBin(hi, 0, len(env)-1, len(env))

	var peak float64
	for k := lo; k <= hi; k++ {
		if env[k] > peak {
			peak = env[k]
		}
	}
	floor := formantFloorFrac * peak

	var formants []float64
	for k := lo + 1; k < hi && len(formants) < maxFormants; k++ {
		if env[k] <= floor {
			continue
		}
		if env[k] > env[k-1] && env[k] > env[k+1] {
			formants = append(formants, binFreq(k))
		}
	}
	return formants
}

func brightness(mag []float64, highBinStart int) float64 {
	var high, total float64
	for k, m := range mag {
		total += m
		if k >= highBinStart {
			high += m
		}
	}
	if total == 0 {
		return 0
	}
	v := high / total
	if v > 1 {
		v = 1
	}
	return v
}

func resonance(harmonics []Harmonic, fundAmp float64) float64 {
	if fundAmp == 0 || len(harmonics) == 0 {
		return 0
	}
	var sum float64
	for _, h := range harmonics {
		sum += h.Amplitude / fundAmp
	}
	v := sum / float64(len(harmonics))
	if v > 1 {
		v = 1
	}
	return v
}

func rasp(mag []float64, harmonics []Harmonic) float64 {
	if len(mag) == 0 {
		return 0
	}
	var harmonicEnergy, total float64
	for _, m := range mag {
		total += m * m
	}
	for _, h := range harmonics {
		harmonicEnergy += h.Amplitude * h.Amplitude
	}
	if total == 0 {
		return 0
	}
	noiseFraction := 1 - harmonicEnergy/total
	if noiseFraction < 0 {
		noiseFraction = 0
	}
	if noiseFraction > 1 {
		noiseFraction = 1
	}
	return noiseFraction
}
