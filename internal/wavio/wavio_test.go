package wavio

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilenameStripsSeparators(t *testing.T) {
	require.Equal(t, "etc_passwd.wav", SanitizeFilename("../../etc/passwd"))
	require.Equal(t, "call.wav", SanitizeFilename("call.wav"))
	require.Equal(t, "call.wav", SanitizeFilename("call"))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	const sr = 8000
	samples := make([]float32, sr/10)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 220 * float64(i) / float64(sr)))
	}

	buf := &seekBuffer{}
	require.NoError(t, Encode(buf, samples, sr))

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, sr, decoded.SampleRate)
	require.Equal(t, 1, decoded.Channels)
	require.Equal(t, samples, decoded.Samples)
}

// seekBuffer adapts a growable in-memory buffer to io.WriteSeeker, since
// the encoder needs to seek back and patch RIFF chunk sizes after writing.
type seekBuffer struct {
	buf []byte
	pos int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = offset
	case 1:
		s.pos += offset
	case 2:
		s.pos = int64(len(s.buf)) + offset
	}
	return s.pos, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
