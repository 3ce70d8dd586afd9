package wavio

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatIEEEFloat = 3

// EncodeFile writes mono float32 samples to path as a 32-bit IEEE-float WAV
// file at the given sample rate.
func EncodeFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: create %s: %w", path, err)
	}
	defer f.Close()

	if err := Encode(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	return nil
}

// Encode writes mono float32 samples to w as 32-bit IEEE-float WAV. Each
// sample's IEEE-754 bit pattern is carried through the encoder's IntBuffer
// as a raw int32, since the underlying codec always writes its Data field
// verbatim and only the header's audio-format tag distinguishes PCM from
// float.
func Encode(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 32, 1, wavFormatIEEEFloat)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 32,
	}
	for i, v := range samples {
		buf.Data[i] = int(int32(math.Float32bits(clampSample(v))))
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: write samples: %w", err)
	}
	return enc.Close()
}

// clampSample guards against an out-of-range float sample reaching the
// encoder, which otherwise silently wraps on overflow.
func clampSample(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
