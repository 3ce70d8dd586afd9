package mfcc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/huntmaster/callcoach/internal/dsp"
)

func testConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameSize:  512,
		NumFilters: 26,
		NumCoeffs:  13,
		Window:     dsp.Hamming,
	}
}

func sine(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sr)))
	}
	return out
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{SampleRate: 16000, FrameSize: 500, NumFilters: 26, NumCoeffs: 13})
	require.Error(t, err)

	_, err = New(Config{SampleRate: 16000, FrameSize: 512, NumFilters: 0, NumCoeffs: 13})
	require.Error(t, err)

	_, err = New(Config{SampleRate: 16000, FrameSize: 512, NumFilters: 26, NumCoeffs: 0})
	require.Error(t, err)

	_, err = New(Config{SampleRate: 0, FrameSize: 512, NumFilters: 26, NumCoeffs: 13})
	require.Error(t, err)
}

func TestExtractRejectsWrongLength(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)

	_, err = e.Extract(make([]float32, 100))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestExtractRejectsNonFinite(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)

	frame := sine(440, 16000, 512)
	frame[10] = float32(math.NaN())
	_, err = e.Extract(frame)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestExtractDeterministic(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	frame := sine(440, 16000, 512)

	a, err := e.Extract(frame)
	require.NoError(t, err)
	e.ResetState()
	b, err := e.Extract(frame)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestExtractFromBufferChunkedVsBatchEquivalence(t *testing.T) {
	cfg := testConfig()
	hop := cfg.FrameSize / 2

	buf := sine(440, 16000, 16000*2)

	batchExtractor, err := New(cfg)
	require.NoError(t, err)
	batch, err := batchExtractor.ExtractFromBuffer(buf, hop)
	require.NoError(t, err)
	require.NotEmpty(t, batch)

	// Feeding the same signal in 512-sample chunks through a rolling buffer,
	// extracting each complete frame and advancing by hop, must produce
	// bitwise identical vectors to the one-shot batch call.
	chunkExtractor, err := New(cfg)
	require.NoError(t, err)
	var chunked [][]float64
	var pending []float32
	for start := 0; start < len(buf); start += 512 {
		end := start + 512
		if end > len(buf) {
			end = len(buf)
		}
		pending = append(pending, buf[start:end]...)
		for len(pending) >= cfg.FrameSize {
			vec, err := chunkExtractor.Extract(pending[:cfg.FrameSize])
			require.NoError(t, err)
			chunked = append(chunked, vec)
			pending = pending[hop:]
		}
	}

	require.Equal(t, len(batch), len(chunked))
	for i := range batch {
		require.Equal(t, batch[i], chunked[i])
	}
}

// TestExtractDeterministicForArbitraryFrames is the property-based
// counterpart of TestExtractDeterministic: for any byte-identical finite
// frame, two independent extractors (so no cache or pre-emphasis state is
// shared) must produce bitwise-equal coefficient vectors.
func TestExtractDeterministicForArbitraryFrames(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := testConfig()
		frame := make([]float32, cfg.FrameSize)
		for i := range frame {
			frame[i] = float32(rapid.Float64Range(-1, 1).Draw(rt, "sample"))
		}

		e1, err := New(cfg)
		require.NoError(rt, err)
		e2, err := New(cfg)
		require.NoError(rt, err)

		a, err := e1.Extract(frame)
		require.NoError(rt, err)
		b, err := e2.Extract(frame)
		require.NoError(rt, err)

		require.Equal(rt, a, b)
	})
}

func TestFrameCacheReturnsSameVectorForSameBytes(t *testing.T) {
	cfg := testConfig()
	cfg.CacheCapacity = 4
	e, err := New(cfg)
	require.NoError(t, err)

	frame := sine(220, 16000, 512)
	a, err := e.Extract(frame)
	require.NoError(t, err)

	// Same frame bytes, same pre-emphasis predecessor: a cache hit must hand
	// back the identical vector.
	e.ResetState()
	b, err := e.Extract(frame)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestFrameCacheDistinguishesPreEmphasisState(t *testing.T) {
	cfg := testConfig()
	cfg.CacheCapacity = 4
	e, err := New(cfg)
	require.NoError(t, err)

	frame := sine(220, 16000, 512)
	a, err := e.Extract(frame)
	require.NoError(t, err)

	// After an intervening frame the predecessor sample differs, so the same
	// frame bytes must be recomputed, not served stale from the cache.
	other := make([]float32, cfg.FrameSize)
	for i := range other {
		other[i] = 0.5
	}
	_, err = e.Extract(other)
	require.NoError(t, err)

	c, err := e.Extract(frame)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}
