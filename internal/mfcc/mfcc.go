// Package mfcc implements the pre-emphasis -> window -> FFT -> power ->
// mel -> log -> DCT -> lifter front-end that turns raw audio frames into
// cepstral feature vectors.
package mfcc

import (
	"errors"
	"fmt"
	"math"

	"github.com/huntmaster/callcoach/internal/dsp"
	"github.com/huntmaster/callcoach/internal/sample"
)

// ErrInvalidInput is returned when a frame is the wrong length or contains a
// non-finite value.
var ErrInvalidInput = errors.New("mfcc: invalid input frame")

const (
	defaultPreEmphasis = 0.97
	logEpsilon         = 1e-10
)

// Config describes the fixed parameters of a front-end instance. FrameSize,
// NumCoeffs, NumFilters and SampleRate are validated once at construction;
// the remaining fields are taken as given. Extract and ExtractFromBuffer
// never re-check them.
type Config struct {
	SampleRate    int
	FrameSize     int // N, power of two
	NumFilters    int // M
	NumCoeffs     int // N'
	LowFreq       float64
	HighFreq      float64 // 0 defaults to Nyquist
	PreEmphasis   float64 // 0 uses the default of 0.97
	LifterLength  int     // 0 disables liftering
	Window        dsp.WindowFunc
	CacheCapacity int // 0 disables the per-frame cache
}

// Extractor runs the MFCC pipeline against a fixed configuration. It is not
// safe for concurrent use by multiple goroutines: pre-emphasis state is
// mutated on every call, matching the engine's per-session ownership model
// — each session (or batch) gets its own Extractor.
type Extractor struct {
	cfg Config

	window []float64
	fft    *dsp.FFT
	mel    *dsp.MelFilterBank
	dct    *dsp.DCT

	prevSample float32
	haveFirst  bool

	windowed []float64
	coeffs   []complex128
	power    []float64
	logMel   []float64

	cache *frameCache
}

// New validates cfg and builds the reusable window/FFT/mel/DCT tables.
func New(cfg Config) (*Extractor, error) {
	if cfg.FrameSize <= 0 || cfg.FrameSize&(cfg.FrameSize-1) != 0 {
		return nil, fmt.Errorf("mfcc: frame size must be a power of two, got %d", cfg.FrameSize)
	}
	if cfg.NumCoeffs <= 0 {
		return nil, fmt.Errorf("mfcc: num coefficients must be positive, got %d", cfg.NumCoeffs)
	}
	if cfg.NumFilters <= 0 {
		return nil, fmt.Errorf("mfcc: num filters must be positive, got %d", cfg.NumFilters)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("mfcc: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.PreEmphasis == 0 {
		cfg.PreEmphasis = defaultPreEmphasis
	}

	fft, err := dsp.NewFFT(cfg.FrameSize)
	if err != nil {
		return nil, err
	}

	e := &Extractor{
		cfg:    cfg,
		window: dsp.NewWindow(cfg.Window, cfg.FrameSize),
		fft:    fft,
		mel:    dsp.NewMelFilterBank(cfg.SampleRate, cfg.FrameSize, cfg.NumFilters, cfg.LowFreq, cfg.HighFreq),
		dct:    dsp.NewDCT(cfg.NumFilters, cfg.NumCoeffs),
	}
	if cfg.CacheCapacity > 0 {
		e.cache = newFrameCache(cfg.CacheCapacity)
	}
	return e, nil
}

// NumCoeffs returns the configured cepstral vector length N'.
func (e *Extractor) NumCoeffs() int { return e.cfg.NumCoeffs }

// FrameSize returns the configured frame length N.
func (e *Extractor) FrameSize() int { return e.cfg.FrameSize }

// ResetState clears the carried pre-emphasis sample, as done automatically at
// the start of every ExtractFromBuffer call.
func (e *Extractor) ResetState() {
	e.prevSample = 0
	e.haveFirst = false
}

// Extract runs the full front-end on a single frame of exactly FrameSize
// samples, returning a fresh N'-length coefficient vector. Pre-emphasis state
// carries across calls on the same Extractor until ResetState is called.
func (e *Extractor) Extract(frame []float32) ([]float64, error) {
	if len(frame) != e.cfg.FrameSize {
		return nil, fmt.Errorf("%w: want %d samples, got %d", ErrInvalidInput, e.cfg.FrameSize, len(frame))
	}
	if !sample.Finite(frame) {
		return nil, fmt.Errorf("%w: non-finite sample", ErrInvalidInput)
	}

	var key uint64
	if e.cache != nil {
		key = hashFrame(e.effectivePrev(frame), frame)
		if v, ok := e.cache.get(key); ok {
			e.prevSample = frame[len(frame)-1]
			e.haveFirst = true
			return v, nil
		}
	}

	out := e.extractLocked(frame)

	if e.cache != nil {
		e.cache.put(key, out)
	}
	return out, nil
}

// effectivePrev returns the predecessor sample pre-emphasis will use for
// frame[0]: the previous frame's last sample, or frame[0] itself on the
// first call after a reset.
func (e *Extractor) effectivePrev(frame []float32) float32 {
	if !e.haveFirst {
		return frame[0]
	}
	return e.prevSample
}

func (e *Extractor) extractLocked(frame []float32) []float64 {
	emphasized := make([]float64, len(frame))
	prev := e.effectivePrev(frame)
	for i, x := range frame {
		var p float32
		if i == 0 {
			p = prev
		} else {
			p = frame[i-1]
		}
		emphasized[i] = float64(x) - e.cfg.PreEmphasis*float64(p)
	}
	e.prevSample = frame[len(frame)-1]
	e.haveFirst = true

	e.windowed = dsp.Apply(e.windowed, emphasized, e.window)
	e.coeffs = e.fft.Transform(e.coeffs, e.windowed)
	e.power = dsp.Power(e.power, e.coeffs)
	e.logMel = e.mel.Apply(e.logMel, e.power)
	for i, v := range e.logMel {
		e.logMel[i] = math.Log(v + logEpsilon)
	}

	out := make([]float64, e.cfg.NumCoeffs)
	out = e.dct.Transform(out, e.logMel)
	if e.cfg.LifterLength > 0 {
		dsp.Lifter(out, e.cfg.LifterLength)
	}
	return out
}

// ExtractFromBuffer slides a FrameSize window across samples at the given
// hop, running Extract on each position and appending the results in order.
// Pre-emphasis state resets at the start of every call.
func (e *Extractor) ExtractFromBuffer(samples []float32, hop int) ([][]float64, error) {
	if hop <= 0 {
		return nil, fmt.Errorf("%w: hop must be positive, got %d", ErrInvalidInput, hop)
	}
	e.ResetState()

	var out [][]float64
	for start := 0; start+e.cfg.FrameSize <= len(samples); start += hop {
		vec, err := e.Extract(samples[start : start+e.cfg.FrameSize])
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}
