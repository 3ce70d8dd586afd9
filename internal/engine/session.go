package engine

import (
	"sync"
	"time"

	"github.com/huntmaster/callcoach/internal/cadence"
	"github.com/huntmaster/callcoach/internal/harmonic"
	"github.com/huntmaster/callcoach/internal/mastercache"
	"github.com/huntmaster/callcoach/internal/mfcc"
	"github.com/huntmaster/callcoach/internal/pitch"
	"github.com/huntmaster/callcoach/internal/vad"
)

// AnalyzerEnables toggles the optional companion analyzers for one session.
type AnalyzerEnables struct {
	Pitch    bool
	Harmonic bool
	Cadence  bool
}

// session owns every piece of mutable state belonging to one caller. Every
// field here is exclusive to this session; the manager only ever hands out
// the session's id, never a reference to the struct itself, so that
// processing one session never contends with another. mu guards against a
// caller violating the "serialize your own process_chunk calls" contract;
// it is not relied on for cross-session isolation, which instead comes from
// per-session analyzer instances rather than a shared mutable processor.
type session struct {
	mu sync.Mutex

	id         uint64
	sampleRate int
	createdAt  time.Time

	maxBufferSize int
	frameSize     int
	hopSize       int

	buffer []float32

	extractor *mfcc.Extractor
	features  [][]float64

	vadDetector *vad.Detector

	enables  AnalyzerEnables
	pitch    *pitch.Tracker
	harmonic *harmonic.Analyzer
	cadence  *cadence.Analyzer

	lastPitch    pitch.Estimate
	lastHarmonic harmonic.Profile

	// cadenceHistory retains raw samples for the cadence analyzer, which
	// needs many onsets' worth of signal rather than a single frame. It is
	// capped to bound memory on long-running sessions.
	cadenceHistory    []float32
	cadenceHistoryCap int

	// recording accumulates the raw take losslessly for SaveRecording.
	// Empty unless a recordings directory is configured.
	recording     []float32
	keepRecording bool

	master   *mastercache.Handle
	masterID string

	cumulativeDuration time.Duration
	destroyed          bool
}

func (s *session) featureCount() int {
	return len(s.features)
}

// drainFrames runs the frame-draining policy over the current buffer:
// while buffer holds >= frameSize samples, extract one MFCC vector
// per hopSize advance. The unconsumed tail (fewer than frameSize samples) is
// retained afterward so the next chunk continues the overlapping frames.
func (s *session) drainFrames() error {
	for len(s.buffer) >= s.frameSize {
		vec, err := s.extractor.Extract(s.buffer[:s.frameSize])
		if err != nil {
			return err
		}
		s.features = append(s.features, vec)

		if s.vadDetector != nil {
			s.vadDetector.Update(s.buffer[:s.frameSize])
		}
		if s.enables.Pitch && s.pitch != nil {
			s.lastPitch = s.pitch.Track(s.buffer[:s.frameSize])
		}
		if s.enables.Harmonic && s.harmonic != nil {
			s.lastHarmonic = s.harmonic.Analyze(s.buffer[:s.frameSize])
		}
		if s.enables.Cadence && s.cadenceHistoryCap > 0 {
			s.appendCadenceHistory(s.buffer[:s.hopSize])
		}

		advance := s.hopSize
		if advance > len(s.buffer) {
			advance = len(s.buffer)
		}
		s.buffer = s.buffer[advance:]
	}
	return nil
}

// appendCadenceHistory accumulates samples for the next on-demand cadence
// pass, dropping the oldest samples once the cap is reached.
func (s *session) appendCadenceHistory(samples []float32) {
	s.cadenceHistory = append(s.cadenceHistory, samples...)
	if excess := len(s.cadenceHistory) - s.cadenceHistoryCap; excess > 0 {
		s.cadenceHistory = s.cadenceHistory[excess:]
	}
}

func (s *session) reset() {
	s.buffer = s.buffer[:0]
	s.features = nil
	if s.vadDetector != nil {
		s.vadDetector.Reset()
	}
	if s.pitch != nil {
		s.pitch.Reset()
	}
	s.lastPitch = pitch.Estimate{}
	s.lastHarmonic = harmonic.Profile{}
	s.cadenceHistory = nil
	s.recording = nil
	s.master = nil
	s.masterID = ""
	s.cumulativeDuration = 0
	s.extractor.ResetState()
}
