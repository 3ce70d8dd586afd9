package engine

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huntmaster/callcoach/internal/cadence"
	"github.com/huntmaster/callcoach/internal/dsp"
	"github.com/huntmaster/callcoach/internal/harmonic"
	"github.com/huntmaster/callcoach/internal/mastercache"
	"github.com/huntmaster/callcoach/internal/mfcc"
	"github.com/huntmaster/callcoach/internal/pitch"
	"github.com/huntmaster/callcoach/internal/vad"
	"github.com/huntmaster/callcoach/internal/wavio"
)

func sineSamples(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sr)))
	}
	return out
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	masterDir := t.TempDir()
	featuresDir := t.TempDir()

	mfccCfg := mfcc.Config{
		SampleRate: 44100,
		FrameSize:  512,
		NumFilters: 26,
		NumCoeffs:  13,
		Window:     dsp.Hamming,
	}
	cache, err := mastercache.New(masterDir, featuresDir, mfccCfg, 16)
	require.NoError(t, err)

	mgr := NewManager(Config{
		MFCC: mfccCfg,
		VAD: vad.Config{
			EnergyThreshold:   0.001,
			SilenceThreshold:  0.05,
			MinSoundWindows:   2,
			MinSilenceWindows: 2,
			HangoverWindows:   2,
		},
		Analyzers: AnalyzerEnables{Pitch: true, Harmonic: true, Cadence: true},
		Harmonic: harmonic.Config{
			FFTSize:        512,
			MinFreq:        80,
			MaxFreq:        2000,
			MaxHarmonics:   5,
			HarmonicFrac:   0.1,
			MaxFormants:    3,
			ConfidenceGate: 0.05,
		},
		Pitch: pitch.Config{
			MinFreq:   80,
			MaxFreq:   2000,
			Threshold: 0.15,
		},
		Cadence: cadence.Config{
			FrameSize: 256,
			HopSize:   128,
			MinTempo:  60,
			MaxTempo:  200,
			MaxLag:    200,
		},
		MaxBufferSize: 1 << 20,
		RecordingsDir: t.TempDir(),
	}, cache)
	return mgr, masterDir
}

func writeMasterWAV(t *testing.T, masterDir, id string, freq float64, sr, n int) {
	t.Helper()
	require.NoError(t, wavio.EncodeFile(filepath.Join(masterDir, id+".wav"), sineSamples(freq, sr, n), sr))
}

func TestSelfSimilarityNearOne(t *testing.T) {
	mgr, masterDir := newTestManager(t)
	const sr = 44100
	writeMasterWAV(t, masterDir, "master", 440, sr, sr)

	id, err := mgr.CreateSession(sr)
	require.NoError(t, err)
	require.NoError(t, mgr.LoadMaster(id, "master"))
	require.NoError(t, mgr.ProcessChunk(id, sineSamples(440, sr, sr)))

	sim, err := mgr.GetSimilarity(id)
	require.NoError(t, err)
	require.GreaterOrEqual(t, sim, 0.9999)
}

func TestDifferentFrequencyLessSimilar(t *testing.T) {
	mgr, masterDir := newTestManager(t)
	const sr = 44100
	writeMasterWAV(t, masterDir, "master", 440, sr, sr)

	selfID, err := mgr.CreateSession(sr)
	require.NoError(t, err)
	require.NoError(t, mgr.LoadMaster(selfID, "master"))
	require.NoError(t, mgr.ProcessChunk(selfID, sineSamples(440, sr, sr)))
	selfSim, err := mgr.GetSimilarity(selfID)
	require.NoError(t, err)

	otherID, err := mgr.CreateSession(sr)
	require.NoError(t, err)
	require.NoError(t, mgr.LoadMaster(otherID, "master"))
	require.NoError(t, mgr.ProcessChunk(otherID, sineSamples(220, sr, sr)))
	otherSim, err := mgr.GetSimilarity(otherID)
	require.NoError(t, err)

	require.Less(t, otherSim, selfSim)
}

func TestChunkedVsBatchEquivalence(t *testing.T) {
	mgr, _ := newTestManager(t)
	const sr = 44100
	signal := sineSamples(440, sr, sr*2)

	batchID, err := mgr.CreateSession(sr)
	require.NoError(t, err)
	require.NoError(t, mgr.ProcessChunk(batchID, signal))
	batchCount, err := mgr.GetFeatureCount(batchID)
	require.NoError(t, err)

	chunkID, err := mgr.CreateSession(sr)
	require.NoError(t, err)
	for start := 0; start < len(signal); start += 512 {
		end := start + 512
		if end > len(signal) {
			end = len(signal)
		}
		require.NoError(t, mgr.ProcessChunk(chunkID, signal[start:end]))
	}
	chunkCount, err := mgr.GetFeatureCount(chunkID)
	require.NoError(t, err)

	require.Equal(t, batchCount, chunkCount)

	mgr.mu.RLock()
	batchFeatures := mgr.sessions[batchID].features
	chunkFeatures := mgr.sessions[chunkID].features
	mgr.mu.RUnlock()

	require.Equal(t, batchFeatures, chunkFeatures)
}

func TestFeatureCountMonotonicBetweenResets(t *testing.T) {
	mgr, _ := newTestManager(t)
	const sr = 44100
	id, err := mgr.CreateSession(sr)
	require.NoError(t, err)

	prev := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, mgr.ProcessChunk(id, sineSamples(440, sr, 1024)))
		count, err := mgr.GetFeatureCount(id)
		require.NoError(t, err)
		require.GreaterOrEqual(t, count, prev)
		prev = count
	}
	require.Greater(t, prev, 0)

	require.NoError(t, mgr.Reset(id))
	count, err := mgr.GetFeatureCount(id)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestProcessChunkRejectsEmptyBuffer(t *testing.T) {
	mgr, _ := newTestManager(t)
	id, err := mgr.CreateSession(44100)
	require.NoError(t, err)

	err = mgr.ProcessChunk(id, nil)
	require.Error(t, err)
	require.Equal(t, InvalidParams, StatusOf(err))
}

func TestProcessChunkRejectsNonFinite(t *testing.T) {
	mgr, _ := newTestManager(t)
	id, err := mgr.CreateSession(44100)
	require.NoError(t, err)

	buf := sineSamples(440, 44100, 16)
	buf[4] = float32(math.NaN())
	err = mgr.ProcessChunk(id, buf)
	require.Error(t, err)
	require.Equal(t, InvalidParams, StatusOf(err))
}

func TestProcessChunkReturnsBufferOverflow(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.cfg.MaxBufferSize = 100
	id, err := mgr.CreateSession(44100)
	require.NoError(t, err)
	mgr.mu.RLock()
	mgr.sessions[id].maxBufferSize = 100
	mgr.mu.RUnlock()

	err = mgr.ProcessChunk(id, make([]float32, 200))
	require.Error(t, err)
	require.Equal(t, BufferOverflow, StatusOf(err))
}

func TestGetSimilarityInsufficientDataWithoutMaster(t *testing.T) {
	mgr, _ := newTestManager(t)
	id, err := mgr.CreateSession(44100)
	require.NoError(t, err)
	require.NoError(t, mgr.ProcessChunk(id, sineSamples(440, 44100, 1024)))

	_, err = mgr.GetSimilarity(id)
	require.Error(t, err)
	require.Equal(t, InsufficientData, StatusOf(err))
}

func TestUnknownSessionReturnsInvalidSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.GetFeatureCount(999)
	require.Error(t, err)
	require.Equal(t, InvalidSession, StatusOf(err))
}

func TestDestroySessionInvalidatesID(t *testing.T) {
	mgr, _ := newTestManager(t)
	id, err := mgr.CreateSession(44100)
	require.NoError(t, err)
	require.True(t, mgr.IsActive(id))

	require.NoError(t, mgr.DestroySession(id))
	require.False(t, mgr.IsActive(id))

	_, err = mgr.GetFeatureCount(id)
	require.Error(t, err)
	require.Equal(t, InvalidSession, StatusOf(err))
}

func TestActiveSessionsEnumeratesLiveIDs(t *testing.T) {
	mgr, _ := newTestManager(t)
	a, err := mgr.CreateSession(44100)
	require.NoError(t, err)
	b, err := mgr.CreateSession(44100)
	require.NoError(t, err)

	ids := mgr.ActiveSessions()
	require.ElementsMatch(t, []uint64{a, b}, ids)
}

func TestConfigureAndGetVAD(t *testing.T) {
	mgr, _ := newTestManager(t)
	id, err := mgr.CreateSession(44100)
	require.NoError(t, err)

	newCfg := vad.Config{EnergyThreshold: 0.5, SilenceThreshold: 0.9, MinSoundWindows: 3, MinSilenceWindows: 3, HangoverWindows: 3}
	require.NoError(t, mgr.ConfigureVAD(id, newCfg))

	got, err := mgr.GetVAD(id)
	require.NoError(t, err)
	require.Equal(t, newCfg, got)
}

func TestSaveRecordingWritesSanitizedWAV(t *testing.T) {
	mgr, _ := newTestManager(t)
	const sr = 44100
	id, err := mgr.CreateSession(sr)
	require.NoError(t, err)

	take := sineSamples(440, sr, sr/10)
	require.NoError(t, mgr.ProcessChunk(id, take))

	path, err := mgr.SaveRecording(id, "../deer grunt/take one")
	require.NoError(t, err)
	require.Equal(t, "deer grunt_take one.wav", filepath.Base(path))

	decoded, err := wavio.DecodeFile(path)
	require.NoError(t, err)
	require.Equal(t, sr, decoded.SampleRate)
	require.Equal(t, 1, decoded.Channels)
	require.Equal(t, take, decoded.Samples)
}

func TestSaveRecordingInsufficientDataBeforeAudio(t *testing.T) {
	mgr, _ := newTestManager(t)
	id, err := mgr.CreateSession(44100)
	require.NoError(t, err)

	_, err = mgr.SaveRecording(id, "empty")
	require.Error(t, err)
	require.Equal(t, InsufficientData, StatusOf(err))
}

func TestCreateSessionRejectsNonPositiveSampleRate(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.CreateSession(0)
	require.Error(t, err)
	require.Equal(t, InvalidParams, StatusOf(err))
}
