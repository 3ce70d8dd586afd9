// Package engine implements the concurrent multi-tenant session manager:
// it owns the set of sessions and the shared master-call cache, and routes
// audio chunks to per-session feature extractors.
package engine

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/huntmaster/callcoach/internal/cadence"
	"github.com/huntmaster/callcoach/internal/diag"
	"github.com/huntmaster/callcoach/internal/dtw"
	"github.com/huntmaster/callcoach/internal/harmonic"
	"github.com/huntmaster/callcoach/internal/mastercache"
	"github.com/huntmaster/callcoach/internal/mfcc"
	"github.com/huntmaster/callcoach/internal/pitch"
	"github.com/huntmaster/callcoach/internal/sample"
	"github.com/huntmaster/callcoach/internal/vad"
	"github.com/huntmaster/callcoach/internal/wavio"
)

// Config bundles the defaults new sessions inherit and the shared
// collaborators (cache, diagnostics) the manager is constructed with.
type Config struct {
	MFCC          mfcc.Config
	VAD           vad.Config
	Analyzers     AnalyzerEnables
	Harmonic      harmonic.Config
	Pitch         pitch.Config
	Cadence       cadence.Config
	MaxBufferSize int
	// RecordingsDir, when non-empty, enables lossless retention of each
	// session's raw take for SaveRecording. Empty disables recording.
	RecordingsDir string
	ErrorSink     diag.ErrorSink
	Profiler      diag.Profiler
	// Logger receives per-session lifecycle events (create, destroy, master
	// bind, buffer overflow). Defaults to a discarding logger so the engine
	// stays silent when the host supplies none.
	Logger *log.Logger
}

// Manager is the engine's long-lived, thread-safe root object. Every public
// entry point is callable concurrently on distinct session ids; the
// sessions map is many-reader/few-writer (sync.RWMutex), and each session's
// own state is owned exclusively by that session so that processing one
// session never serializes with processing another.
type Manager struct {
	cfg   Config
	cache *mastercache.Cache

	mu       sync.RWMutex
	sessions map[uint64]*session
	nextID   uint64

	errSink  diag.ErrorSink
	profiler diag.Profiler
	log      *log.Logger
}

// NewManager constructs a Manager sharing cache across every session it
// creates.
func NewManager(cfg Config, cache *mastercache.Cache) *Manager {
	errSink := cfg.ErrorSink
	if errSink == nil {
		errSink = diag.NewNoOpErrorSink()
	}
	profiler := cfg.Profiler
	if profiler == nil {
		profiler = diag.NewNoOpProfiler()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{
		cfg:      cfg,
		cache:    cache,
		sessions: make(map[uint64]*session),
		errSink:  errSink,
		profiler: profiler,
		log:      logger.With("component", "session"),
	}
}

// CreateSession allocates a new session bound to sr, in the empty state.
func (m *Manager) CreateSession(sr int) (uint64, error) {
	if sr <= 0 {
		return 0, newError(InvalidParams, "sample rate must be positive")
	}

	cfg := m.cfg.MFCC
	cfg.SampleRate = sr
	extractor, err := mfcc.New(cfg)
	if err != nil {
		return 0, newError(InvalidParams, err.Error())
	}

	s := &session{
		sampleRate:    sr,
		createdAt:     time.Now(),
		maxBufferSize: m.cfg.MaxBufferSize,
		frameSize:     cfg.FrameSize,
		hopSize:       cfg.FrameSize / 2,
		extractor:     extractor,
		vadDetector:   vad.New(m.cfg.VAD),
		enables:       m.cfg.Analyzers,
		keepRecording: m.cfg.RecordingsDir != "",
	}
	if m.cfg.Analyzers.Pitch {
		pc := m.cfg.Pitch
		pc.SampleRate = sr
		s.pitch = pitch.New(pc)
	}
	if m.cfg.Analyzers.Harmonic {
		hc := m.cfg.Harmonic
		hc.SampleRate = sr
		if a, err := harmonic.New(hc); err == nil {
			s.harmonic = a
		}
	}
	if m.cfg.Analyzers.Cadence {
		cc := m.cfg.Cadence
		cc.SampleRate = sr
		s.cadence = cadence.New(cc)
		s.cadenceHistoryCap = sr * 5 // five seconds of history, per the end-to-end cadence scenario
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	s.id = id
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Debug("session created", "id", id, "sample_rate", sr)
	return id, nil
}

// lookup returns the session for id under a read lock, or InvalidSession.
func (m *Manager) lookup(id uint64) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.destroyed {
		return nil, newError(InvalidSession, "unknown or destroyed session")
	}
	return s, nil
}

// DestroySession releases id's resources; id is never reused.
func (m *Manager) DestroySession(id uint64) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return newError(InvalidSession, "unknown or destroyed session")
	}
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
	m.log.Debug("session destroyed", "id", id)
	return nil
}

// LoadMaster binds mcID to id, reusing the shared cache. If the master's
// MFCC configuration matches the session's sample rate and frame
// parameters the handle is attached directly; otherwise the session is
// rejected rather than silently compared against an incompatible master.
func (m *Manager) LoadMaster(id uint64, mcID string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}

	handle, err := m.cache.Get(mcID)
	if err != nil {
		return newError(FileNotFound, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return newError(InvalidSession, "unknown or destroyed session")
	}
	if handle.SampleRate != s.sampleRate {
		return newError(ProcessingError, "master sample rate does not match session sample rate")
	}
	if handle.NumCoeffs != s.extractor.NumCoeffs() {
		return newError(ProcessingError, "master coefficient count does not match session configuration")
	}

	s.master = handle
	s.masterID = mcID
	m.log.Debug("master bound", "id", id, "master_id", mcID, "frames", len(handle.Vectors))
	return nil
}

// ProcessChunk appends buf to id's rolling buffer and drains complete
// frames into the feature extractors. A failed call leaves the session
// unchanged.
func (m *Manager) ProcessChunk(id uint64, buf []float32) error {
	if len(buf) == 0 {
		return newError(InvalidParams, "empty chunk")
	}
	if !sample.Finite(buf) {
		return newError(InvalidParams, "non-finite sample in chunk")
	}

	s, err := m.lookup(id)
	if err != nil {
		return err
	}

	timer := diag.StartTimer(m.profiler, "process_chunk")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return newError(InvalidSession, "unknown or destroyed session")
	}

	if len(s.buffer)+len(buf) > s.maxBufferSize {
		m.log.Warn("buffer overflow", "id", id, "buffered", len(s.buffer), "incoming", len(buf), "max", s.maxBufferSize)
		return newError(BufferOverflow, "chunk would exceed max buffer size")
	}

	s.buffer = append(s.buffer, buf...)
	if s.keepRecording {
		s.recording = append(s.recording, buf...)
	}
	s.cumulativeDuration += time.Duration(len(buf)) * time.Second / time.Duration(s.sampleRate)

	if err := s.drainFrames(); err != nil {
		m.errSink.ReportError("engine.process_chunk", err)
		return newError(ProcessingError, err.Error())
	}
	return nil
}

// GetSimilarity runs DTW between id's accumulated features and its bound
// master, returning a score in (0,1].
func (m *Manager) GetSimilarity(id uint64) (float64, error) {
	s, err := m.lookup(id)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return 0, newError(InvalidSession, "unknown or destroyed session")
	}
	if s.master == nil || len(s.features) == 0 {
		return 0, newError(InsufficientData, "no master bound or no features accumulated")
	}

	distance := dtw.Distance(s.features, s.master.Vectors)
	return dtw.Similarity(distance), nil
}

// GetFeatureCount returns the size of id's accumulated MFCC sequence.
func (m *Manager) GetFeatureCount(id uint64) (int, error) {
	s, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.featureCount(), nil
}

// Reset clears id's buffer, features, VAD state, and master binding,
// preserving the id and sample rate.
func (m *Manager) Reset(id uint64) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return newError(InvalidSession, "unknown or destroyed session")
	}
	s.reset()
	return nil
}

// ConfigureVAD replaces id's VAD thresholds.
func (m *Manager) ConfigureVAD(id uint64, cfg vad.Config) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return newError(InvalidSession, "unknown or destroyed session")
	}
	s.vadDetector.Configure(cfg)
	return nil
}

// GetVAD returns id's current VAD thresholds.
func (m *Manager) GetVAD(id uint64) (vad.Config, error) {
	s, err := m.lookup(id)
	if err != nil {
		return vad.Config{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vadDetector.Config(), nil
}

// ActiveSessions enumerates every live session id.
func (m *Manager) ActiveSessions() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// IsActive probes whether id is a live session.
func (m *Manager) IsActive(id uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return ok && !s.destroyed
}

// GetPitchEstimate returns the most recent pitch estimate computed while
// draining frames, or InsufficientData if the pitch analyzer is disabled.
func (m *Manager) GetPitchEstimate(id uint64) (pitch.Estimate, error) {
	s, err := m.lookup(id)
	if err != nil {
		return pitch.Estimate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enables.Pitch {
		return pitch.Estimate{}, newError(InsufficientData, "pitch analyzer not enabled for this session")
	}
	return s.lastPitch, nil
}

// GetHarmonicProfile returns the most recent harmonic/spectral-shape
// profile computed while draining frames.
func (m *Manager) GetHarmonicProfile(id uint64) (harmonic.Profile, error) {
	s, err := m.lookup(id)
	if err != nil {
		return harmonic.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enables.Harmonic {
		return harmonic.Profile{}, newError(InsufficientData, "harmonic analyzer not enabled for this session")
	}
	return s.lastHarmonic, nil
}

// SaveRecording persists id's accumulated raw take as a 32-bit float mono
// WAV in the configured recordings directory. The caller-supplied name is
// sanitized (path separators stripped, .wav appended if absent) and the
// full path of the written file is returned.
func (m *Manager) SaveRecording(id uint64, name string) (string, error) {
	s, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return "", newError(InvalidSession, "unknown or destroyed session")
	}
	if !s.keepRecording {
		return "", newError(InvalidParams, "no recordings directory configured")
	}
	if len(s.recording) == 0 {
		return "", newError(InsufficientData, "no audio accumulated to save")
	}

	if err := os.MkdirAll(m.cfg.RecordingsDir, 0o755); err != nil {
		return "", newError(FileWriteError, err.Error())
	}
	path := filepath.Join(m.cfg.RecordingsDir, wavio.SanitizeFilename(name))
	if err := wavio.EncodeFile(path, s.recording, s.sampleRate); err != nil {
		return "", newError(FileWriteError, err.Error())
	}
	m.log.Debug("recording saved", "id", id, "path", path, "samples", len(s.recording))
	return path, nil
}

// GetCadence runs the cadence analyzer over the session's recent raw-sample
// history on demand (cadence needs many onsets' worth of signal, unlike
// pitch/harmonic which update every drained frame).
func (m *Manager) GetCadence(id uint64) (cadence.Rhythm, error) {
	s, err := m.lookup(id)
	if err != nil {
		return cadence.Rhythm{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enables.Cadence || s.cadence == nil {
		return cadence.Rhythm{}, newError(InsufficientData, "cadence analyzer not enabled for this session")
	}
	if len(s.cadenceHistory) == 0 {
		return cadence.Rhythm{}, newError(InsufficientData, "no samples accumulated yet")
	}
	return s.cadence.Analyze(s.cadenceHistory), nil
}
