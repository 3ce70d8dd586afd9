package cadence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func clickTrain(sr int, bpm float64, durationSec float64) []float32 {
	n := int(float64(sr) * durationSec)
	out := make([]float32, n)
	period := 60.0 / bpm
	interval := int(period * float64(sr))
	for i := 0; i < n; i += interval {
		for j := 0; j < 40 && i+j < n; j++ {
			out[i+j] = 1
		}
	}
	return out
}

func testConfig(sr int) Config {
	return Config{
		SampleRate: sr,
		FrameSize:  256,
		HopSize:    128,
		MinTempo:   60,
		MaxTempo:   200,
		MaxLag:     200,
	}
}

func TestAnalyze120BPMClicks(t *testing.T) {
	const sr = 16000
	a := New(testConfig(sr))
	signal := clickTrain(sr, 120, 5)

	r := a.Analyze(signal)
	require.GreaterOrEqual(t, len(r.Onsets), 8)
	require.GreaterOrEqual(t, r.Tempo.BPM, 110.0)
	require.LessOrEqual(t, r.Tempo.BPM, 130.0)
}

func TestAnalyzeEmptyOnSilence(t *testing.T) {
	const sr = 16000
	a := New(testConfig(sr))
	r := a.Analyze(make([]float32, sr))
	require.Empty(t, r.Onsets)
}

func TestStrongRhythmGateBounds(t *testing.T) {
	const sr = 16000
	a := New(testConfig(sr))
	signal := clickTrain(sr, 120, 5)
	r := a.Analyze(signal)
	require.GreaterOrEqual(t, r.Score, 0.0)
	require.LessOrEqual(t, r.Score, 1.0)
}

func TestSegmentSyllablesCoversOnsets(t *testing.T) {
	const sr = 16000
	a := New(testConfig(sr))
	signal := clickTrain(sr, 120, 5)
	r := a.Analyze(signal)
	syllables := a.SegmentSyllables(signal, r.Onsets)
	require.Len(t, syllables, len(r.Onsets))
}
