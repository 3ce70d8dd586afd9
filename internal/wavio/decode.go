// Package wavio adapts the external WAV codec (go-audio/wav) to the
// interleaved float32 PCM buffers the analysis pipeline expects, and
// encodes recorded sessions back out to WAV.
package wavio

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// Decoded holds a fully-decoded master-call source file: interleaved
// samples at the file's native sample rate and channel count, not yet
// downmixed.
type Decoded struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// DecodeFile opens and fully decodes a RIFF/WAVE file (PCM or IEEE-float,
// any channel count or sample rate) into interleaved float32 samples in
// [-1, 1].
func DecodeFile(path string) (Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Decoded{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Decoded{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a RIFF/WAVE stream fully into memory.
func Decode(r io.ReadSeeker) (Decoded, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Decoded{}, fmt.Errorf("%w: invalid WAV header", ErrNotFound)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Decoded{}, fmt.Errorf("wavio: decode PCM: %w", err)
	}

	samples := make([]float32, len(buf.Data))
	if dec.WavAudioFormat == wavFormatIEEEFloat && dec.BitDepth == 32 {
		// The codec reads 32-bit samples as raw int32 regardless of the
		// header's format tag, so IEEE-float files arrive as bit patterns
		// that just need reinterpreting, mirroring Encode.
		for i, v := range buf.Data {
			samples[i] = math.Float32frombits(uint32(int32(v)))
		}
	} else {
		maxAbs := fullScale(buf.SourceBitDepth)
		for i, v := range buf.Data {
			samples[i] = float32(float64(v) / maxAbs)
		}
	}

	return Decoded{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

func fullScale(bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return float64(int(1) << (bitDepth - 1))
}

// ErrNotFound mirrors the engine's FileNotFound boundary error for missing
// or malformed master-call source files.
var ErrNotFound = fmt.Errorf("wavio: file not found or invalid")

// SanitizeFilename strips path separators and traversal components from a
// caller-supplied name and appends .wav if absent, per the recording-output
// rules.
func SanitizeFilename(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	name = strings.Join(kept, "_")
	if name == "" {
		name = "recording"
	}
	if !strings.EqualFold(filepath.Ext(name), ".wav") {
		name += ".wav"
	}
	return name
}
