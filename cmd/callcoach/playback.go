package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/oto/v2"

	"github.com/huntmaster/callcoach/internal/config"
	"github.com/huntmaster/callcoach/internal/sample"
	"github.com/huntmaster/callcoach/internal/wavio"
)

const (
	otoBitDepth = 2 // 16-bit PCM
	otoChannels = 1 // master calls are played back downmixed to mono
)

// playMasterCall decodes the master call's source WAV and plays it through
// the default audio device via oto. This is purely a host-side convenience
// for practice sessions; the engine never depends on this package, since
// device playback is the host's responsibility.
func playMasterCall(cfg *config.Config, masterID string, logger *log.Logger) error {
	path := cfg.Paths.MasterCallsDir + "/" + masterID + ".wav"
	decoded, err := wavio.DecodeFile(path)
	if err != nil {
		return fmt.Errorf("decode master call %q: %w", masterID, err)
	}
	mono := sample.DownmixMean(decoded.Samples, decoded.Channels)

	ctx, ready, err := oto.NewContext(decoded.SampleRate, otoChannels, otoBitDepth)
	if err != nil {
		return fmt.Errorf("create oto context: %w", err)
	}
	<-ready

	pcm := floatToPCM16(mono)
	player := ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()

	logger.Debug("playing master call", "id", masterID, "duration_sec", float64(len(mono))/float64(decoded.SampleRate))
	player.Play()
	for player.IsPlaying() {
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

// floatToPCM16 converts [-1,1] float32 samples to little-endian signed
// 16-bit PCM, clamping out-of-range values rather than wrapping them.
func floatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		f := float64(v)
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * 32767)
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}
