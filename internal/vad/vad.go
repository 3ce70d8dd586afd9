// Package vad implements the energy/peak gated voice-activity state machine
// described for the coaching engine's session front-end.
package vad

import "fmt"

// State is one of the four voice-activity states.
type State int

const (
	Silent State = iota
	Candidate
	Active
	Hangover
)

func (s State) String() string {
	switch s {
	case Silent:
		return "silent"
	case Candidate:
		return "candidate"
	case Active:
		return "active"
	case Hangover:
		return "hangover"
	default:
		return fmt.Sprintf("vad.State(%d)", int(s))
	}
}

// Config holds the thresholds and hysteresis durations, expressed in
// windows rather than samples or milliseconds so the detector never needs
// to know the window's wall-clock duration.
type Config struct {
	EnergyThreshold   float64
	SilenceThreshold  float64
	MinSoundWindows   int
	MinSilenceWindows int
	HangoverWindows   int
}

// Detector is a stateful, synchronous VAD. One Detector belongs to exactly
// one session; Update is not safe for concurrent use.
type Detector struct {
	cfg Config

	state              State
	consecutiveSound   int
	consecutiveSilence int
	hangoverElapsed    int

	lastEnergy float64
	lastPeak   float64
}

// New constructs a Detector in the Silent state.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, state: Silent}
}

// State returns the current state.
func (d *Detector) State() State { return d.state }

// IsVoiceActive reports whether the detector currently considers the input
// a live call attempt (true in Active and Hangover only).
func (d *Detector) IsVoiceActive() bool {
	return d.state == Active || d.state == Hangover
}

// Reset returns the detector to Silent with all counters cleared.
func (d *Detector) Reset() {
	d.state = Silent
	d.consecutiveSound = 0
	d.consecutiveSilence = 0
	d.hangoverElapsed = 0
	d.lastEnergy = 0
	d.lastPeak = 0
}

// Configure replaces the thresholds in place without resetting state.
func (d *Detector) Configure(cfg Config) { d.cfg = cfg }

// Config returns the detector's current thresholds.
func (d *Detector) Config() Config { return d.cfg }

// Update computes energy and peak for one window of samples and advances the
// state machine by exactly one step.
func (d *Detector) Update(window []float32) State {
	var energy, peak float64
	for _, x := range window {
		v := float64(x)
		energy += v * v
		a := v
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
	}
	if len(window) > 0 {
		energy /= float64(len(window))
	}
	d.lastEnergy = energy
	d.lastPeak = peak

	active := energy > d.cfg.EnergyThreshold || peak > d.cfg.SilenceThreshold

	if active {
		d.consecutiveSound++
		d.consecutiveSilence = 0
	} else {
		d.consecutiveSilence++
		d.consecutiveSound = 0
	}

	switch d.state {
	case Silent:
		if active {
			d.state = Candidate
		}
	case Candidate:
		if active && d.consecutiveSound >= d.cfg.MinSoundWindows {
			d.state = Active
		} else if !active {
			d.state = Silent
		}
	case Active:
		if !active && d.consecutiveSilence >= d.cfg.MinSilenceWindows {
			d.state = Hangover
			d.hangoverElapsed = 0
		}
	case Hangover:
		if active {
			d.state = Active
		} else {
			d.hangoverElapsed++
			if d.hangoverElapsed >= d.cfg.HangoverWindows {
				d.state = Silent
			}
		}
	}
	return d.state
}

// LastEnergy and LastPeak expose the most recent window's measurements for
// diagnostics.
func (d *Detector) LastEnergy() float64 { return d.lastEnergy }
func (d *Detector) LastPeak() float64   { return d.lastPeak }
