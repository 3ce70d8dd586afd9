// Package pitch implements a YIN fundamental-frequency tracker with optional
// one-pole smoothing, rolling statistics, and vibrato detection.
package pitch

import (
	"gonum.org/v1/gonum/stat"
)

// Estimate is the result of one Track call.
type Estimate struct {
	Frequency  float64 // Hz; 0 if unvoiced
	Confidence float64 // 0 if unvoiced
	Voiced     bool
}

// Config holds the tunable bounds of the tracker.
type Config struct {
	SampleRate int
	MinFreq    float64 // f_min
	MaxFreq    float64 // f_max
	Threshold  float64 // YIN absolute threshold, e.g. 0.15
	Smoothing  float64 // one-pole alpha in [0,1]; 0 disables smoothing
	HistoryLen int     // recent-estimate history retained for stats/vibrato
}

// Tracker carries smoothing state and a rolling history of voiced estimates
// across successive windows; one Tracker belongs to one session.
type Tracker struct {
	cfg        Config
	smooth     float64
	haveSmooth bool
	history    []float64 // recent voiced frequencies, most-recent last
}

// New constructs a Tracker. HistoryLen defaults to 32 if unset.
func New(cfg Config) *Tracker {
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = 32
	}
	return &Tracker{cfg: cfg}
}

// diffFunc computes the squared difference function d[tau] for tau in
// [0, W/2).
func diffFunc(x []float64) []float64 {
	half := len(x) / 2
	d := make([]float64, half)
	for tau := 1; tau < half; tau++ {
		var sum float64
		for i := 0; i < half; i++ {
			diff := x[i] - x[i+tau]
			sum += diff * diff
		}
		d[tau] = sum
	}
	return d
}

// cmnd computes the cumulative mean normalized difference function, d'[0]=1.
func cmnd(d []float64) []float64 {
	out := make([]float64, len(d))
	out[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		if running == 0 {
			out[tau] = 1
			continue
		}
		out[tau] = d[tau] * float64(tau) / running
	}
	return out
}

// Track runs YIN on a window of float32 samples and updates rolling state.
func (t *Tracker) Track(window []float32) Estimate {
	x := make([]float64, len(window))
	for i, v := range window {
		x[i] = float64(v)
	}

	d := diffFunc(x)
	dp := cmnd(d)

	tauMin := int(float64(t.cfg.SampleRate) / t.cfg.MaxFreq)
	tauMax := int(float64(t.cfg.SampleRate) / t.cfg.MinFreq)
	if tauMin < 1 {
		tauMin = 1
	}
	if tauMax >= len(dp) {
		tauMax = len(dp) - 1
	}

	tauStar := -1
	for tau := tauMin; tau <= tauMax; tau++ {
		if dp[tau] < t.cfg.Threshold {
			// Walk downhill into the local minimum before emitting it.
			for tau+1 <= tauMax && dp[tau+1] < dp[tau] {
				tau++
			}
			tauStar = tau
			break
		}
	}

	if tauStar < 0 {
		return Estimate{}
	}

	freq := float64(t.cfg.SampleRate) / float64(tauStar)
	if freq < t.cfg.MinFreq || freq > t.cfg.MaxFreq {
		return Estimate{}
	}
	confidence := 1 - dp[tauStar]

	if t.cfg.Smoothing > 0 {
		if !t.haveSmooth {
			t.smooth = freq
			t.haveSmooth = true
		} else {
			t.smooth = t.cfg.Smoothing*freq + (1-t.cfg.Smoothing)*t.smooth
		}
		freq = t.smooth
	}

	t.history = append(t.history, freq)
	if len(t.history) > t.cfg.HistoryLen {
		t.history = t.history[len(t.history)-t.cfg.HistoryLen:]
	}

	return Estimate{Frequency: freq, Confidence: confidence, Voiced: true}
}

// Reset clears smoothing and history state, used on session reset.
func (t *Tracker) Reset() {
	t.smooth = 0
	t.haveSmooth = false
	t.history = nil
}

// Stats summarizes the recent voiced-frequency history.
type Stats struct {
	Mean      float64
	StdDev    float64
	Range     float64
	Stability float64 // 1 / (1 + sigma/mu)
}

// Stats computes rolling statistics over the current history. It is the
// zero value if no voiced estimate has been recorded yet.
func (t *Tracker) Stats() Stats {
	if len(t.history) == 0 {
		return Stats{}
	}
	mean := stat.Mean(t.history, nil)
	std := stat.StdDev(t.history, nil)

	lo, hi := t.history[0], t.history[0]
	for _, v := range t.history {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	stability := 1.0
	if mean != 0 {
		stability = 1 / (1 + std/mean)
	}

	return Stats{Mean: mean, StdDev: std, Range: hi - lo, Stability: stability}
}

// Vibrato summarizes oscillation of recent pitch estimates around their
// mean.
type Vibrato struct {
	Detected   bool
	RateHz     float64
	Regularity float64 // 1 / (1 + CV of inter-crossing cycle lengths)
}

// minVibratoHistory is the minimum number of recent estimates required
// before vibrato is assessed at all.
const minVibratoHistory = 12

// DetectVibrato looks for zero-crossings of the centered recent-pitch
// history and reports oscillation rate and regularity. frameRate is the
// number of Track calls per second (i.e. 1/hop-duration), used to convert
// crossing counts to Hz.
func (t *Tracker) DetectVibrato(frameRate float64) Vibrato {
	if len(t.history) < minVibratoHistory {
		return Vibrato{}
	}
	mean := stat.Mean(t.history, nil)

	var crossingIndices []int
	prevSign := t.history[0] - mean >= 0
	for i := 1; i < len(t.history); i++ {
		sign := t.history[i]-mean >= 0
		if sign != prevSign {
			crossingIndices = append(crossingIndices, i)
		}
		prevSign = sign
	}
	if len(crossingIndices) < 2 {
		return Vibrato{}
	}

	cycles := make([]float64, 0, len(crossingIndices)-1)
	for i := 1; i < len(crossingIndices); i++ {
		cycles = append(cycles, float64(crossingIndices[i]-crossingIndices[i-1]))
	}
	meanCycle := stat.Mean(cycles, nil)
	if meanCycle == 0 {
		return Vibrato{}
	}
	stdCycle := stat.StdDev(cycles, nil)
	cv := stdCycle / meanCycle

	// Two zero-crossings per oscillation cycle.
	ratePerCrossingPair := frameRate / (2 * meanCycle)

	return Vibrato{
		Detected:   true,
		RateHz:     ratePerCrossingPair,
		Regularity: 1 / (1 + cv),
	}
}
