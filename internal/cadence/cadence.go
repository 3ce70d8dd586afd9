// Package cadence derives onset timing, tempo, and rhythmic-regularity
// features from a framed energy signal.
package cadence

import "math"

// Config holds the framing and tempo-search parameters.
type Config struct {
	SampleRate int
	FrameSize  int
	HopSize    int
	MinTempo   float64 // BPM
	MaxTempo   float64 // BPM
	MaxLag     int     // L_max, caps autocorrelation search for short inputs
	ThresholdK float64 // adaptive threshold multiplier on sigma
}

// Onset is one detected onset, expressed in seconds from the start of the
// analyzed buffer.
type Onset struct {
	TimeSec   float64
	Magnitude float64
}

// Tempo is the autocorrelation-derived tempo estimate.
type Tempo struct {
	BPM        float64
	Confidence float64
}

// Rhythm summarizes regularity/complexity/syncopation of the onset series.
type Rhythm struct {
	Onsets       []Onset
	Tempo        Tempo
	Regularity   float64
	Complexity   float64
	Syncopation  float64
	Score        float64
	Confidence   float64
	StrongRhythm bool
}

// Analyzer computes onset and tempo features for a fixed frame/hop
// configuration. Stateless across calls; a full buffer is analyzed each
// time.
type Analyzer struct {
	cfg Config
}

// New constructs an Analyzer.
func New(cfg Config) *Analyzer {
	if cfg.ThresholdK == 0 {
		cfg.ThresholdK = 1.5
	}
	return &Analyzer{cfg: cfg}
}

func frameEnergies(samples []float32, frameSize, hop int) []float64 {
	var energies []float64
	for start := 0; start+frameSize <= len(samples); start += hop {
		var e float64
		for _, x := range samples[start : start+frameSize] {
			v := float64(x)
			e += v * v
		}
		energies = append(energies, e)
	}
	return energies
}

// onsetFunction differences consecutive frame energies and half-wave
// rectifies the result.
func onsetFunction(energies []float64) []float64 {
	if len(energies) < 2 {
		return nil
	}
	out := make([]float64, len(energies)-1)
	for i := 1; i < len(energies); i++ {
		d := energies[i] - energies[i-1]
		if d < 0 {
			d = 0
		}
		out[i-1] = d
	}
	return out
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

// pickOnsets finds local maxima in the onset function above an adaptive
// threshold of mean + k*sigma.
func pickOnsets(fn []float64, k float64, hopSize, sampleRate int) []Onset {
	mean, std := meanStd(fn)
	threshold := mean + k*std

	var onsets []Onset
	for i := 1; i < len(fn)-1; i++ {
		if fn[i] <= threshold {
			continue
		}
		if fn[i] >= fn[i-1] && fn[i] >= fn[i+1] {
			onsets = append(onsets, Onset{
				TimeSec:   float64(i*hopSize) / float64(sampleRate),
				Magnitude: fn[i],
			})
		}
	}
	return onsets
}

// autocorrelate computes the raw (unnormalized) autocorrelation of fn up to
// maxLag: each lag's value is the plain sum of fn[i]*fn[i+lag].
func autocorrelate(fn []float64, maxLag int) []float64 {
	n := len(fn)
	if maxLag >= n {
		maxLag = n - 1
	}
	out := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += fn[i] * fn[i+lag]
		}
		out[lag] = sum
	}
	return out
}

func (a *Analyzer) estimateTempo(fn []float64) Tempo {
	if len(fn) < 2 {
		return Tempo{}
	}
	framesPerSec := float64(a.cfg.SampleRate) / float64(a.cfg.HopSize)

	minLag := int(framesPerSec * 60 / a.cfg.MaxTempo)
	maxLag := int(framesPerSec * 60 / a.cfg.MinTempo)
	if maxLag > a.cfg.MaxLag && a.cfg.MaxLag > 0 {
		maxLag = a.cfg.MaxLag
	}
	if minLag < 1 {
		minLag = 1
	}

	ac := autocorrelate(fn, maxLag)
	if maxLag >= len(ac) {
		maxLag = len(ac) - 1
	}
	if minLag > maxLag {
		return Tempo{}
	}

	// A beat period rarely spans a whole number of frames, so an onset
	// train's correlation splits between neighbouring lags. Scoring each lag
	// together with its immediate neighbours keeps a multiple of the period
	// that happens to land on a whole frame count from beating the period.
	score := func(lag int) float64 {
		s := ac[lag] + ac[lag-1]
		if lag+1 < len(ac) {
			s += ac[lag+1]
		}
		return s
	}
	bestLag := minLag
	for lag := minLag; lag <= maxLag; lag++ {
		if score(lag) > score(bestLag) {
			bestLag = lag
		}
	}
	if bestLag == 0 {
		return Tempo{}
	}

	period := float64(bestLag) / framesPerSec
	bpm := 60 / period
	confidence := ac[bestLag]
	if ac[0] != 0 {
		confidence = ac[bestLag] / ac[0]
	}
	return Tempo{BPM: bpm, Confidence: confidence}
}

// Analyze computes the full rhythm profile for a buffer of samples.
func (a *Analyzer) Analyze(samples []float32) Rhythm {
	energies := frameEnergies(samples, a.cfg.FrameSize, a.cfg.HopSize)
	fn := onsetFunction(energies)
	onsets := pickOnsets(fn, a.cfg.ThresholdK, a.cfg.HopSize, a.cfg.SampleRate)
	tempo := a.estimateTempo(fn)

	if len(onsets) < 2 {
		return Rhythm{Onsets: onsets, Tempo: tempo}
	}

	iois := make([]float64, 0, len(onsets)-1)
	for i := 1; i < len(onsets); i++ {
		iois = append(iois, onsets[i].TimeSec-onsets[i-1].TimeSec)
	}
	meanIOI, stdIOI := meanStd(iois)
	variance := stdIOI * stdIOI
	regularity := 1 / (1 + variance)

	const tolerance = 0.02 // seconds
	distinct := distinctCount(iois, tolerance)
	complexity := float64(distinct) / float64(len(iois))

	var syncSum float64
	for _, ioi := range iois {
		syncSum += math.Abs(ioi - meanIOI)
	}
	syncopation := 0.0
	if meanIOI != 0 {
		syncopation = (syncSum / float64(len(iois))) / meanIOI
	}

	score := clamp01(0.5*regularity + 0.3*tempo.Confidence + 0.2*(1-clamp01(syncopation)))
	confidence := clamp01(tempo.Confidence)

	return Rhythm{
		Onsets:       onsets,
		Tempo:        tempo,
		Regularity:   regularity,
		Complexity:   complexity,
		Syncopation:  syncopation,
		Score:        score,
		Confidence:   confidence,
		StrongRhythm: score > 0.6 && confidence > 0.5,
	}
}

func distinctCount(xs []float64, tolerance float64) int {
	var buckets []float64
	for _, x := range xs {
		found := false
		for _, b := range buckets {
			if math.Abs(x-b) <= tolerance {
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, x)
		}
	}
	return len(buckets)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Syllable is one sub-call envelope segment found by the optional
// second-pass segmentation.
type Syllable struct {
	StartSec float64
	EndSec   float64
	PeakSec  float64
}

// SegmentSyllables performs a second-pass peak-pick inside each call
// envelope implied by consecutive onsets: each onset's span runs to the next
// onset (or the end of the buffer) and is reported with the time of its
// highest-energy frame. At most one Syllable is produced per onset; a span is
// not split further at local energy minima.
func (a *Analyzer) SegmentSyllables(samples []float32, onsets []Onset) []Syllable {
	if len(onsets) == 0 {
		return nil
	}
	energies := frameEnergies(samples, a.cfg.FrameSize, a.cfg.HopSize)
	framesPerSec := float64(a.cfg.SampleRate) / float64(a.cfg.HopSize)

	var syllables []Syllable
	for i, onset := range onsets {
		end := float64(len(energies)) / framesPerSec
		if i+1 < len(onsets) {
			end = onsets[i+1].TimeSec
		}
		startFrame := int(onset.TimeSec * framesPerSec)
		endFrame := int(end * framesPerSec)
		if endFrame > len(energies) {
			endFrame = len(energies)
		}
		if startFrame >= endFrame {
			continue
		}
		peakFrame := startFrame
		for f := startFrame; f < endFrame; f++ {
			if energies[f] > energies[peakFrame] {
				peakFrame = f
			}
		}
		syllables = append(syllables, Syllable{
			StartSec: onset.TimeSec,
			EndSec:   end,
			PeakSec:  float64(peakFrame) / framesPerSec,
		})
	}
	return syllables
}
