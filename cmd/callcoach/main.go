// Command callcoach is the host-side CLI around the call-coaching engine.
// It owns the host-side concerns the engine itself stays out of: decoding a
// recorded practice take, driving one session through the engine, printing
// the resulting similarity and analyzer profiles, and optionally playing
// the master call back to the user first. None of this package is imported
// by internal/engine or its analyzer packages.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/huntmaster/callcoach/internal/cadence"
	"github.com/huntmaster/callcoach/internal/config"
	"github.com/huntmaster/callcoach/internal/engine"
	"github.com/huntmaster/callcoach/internal/harmonic"
	"github.com/huntmaster/callcoach/internal/mastercache"
	"github.com/huntmaster/callcoach/internal/mfcc"
	"github.com/huntmaster/callcoach/internal/pitch"
	"github.com/huntmaster/callcoach/internal/sample"
	"github.com/huntmaster/callcoach/internal/vad"
	"github.com/huntmaster/callcoach/internal/wavio"
)

// Version is set at build time via ldflags.
var Version = "dev"

type flags struct {
	configDir string
	masterID  string
	takePath  string
	saveAs    string
	play      bool
	verbose   bool
	version   bool
}

func parseFlags() *flags {
	f := &flags{}
	pflag.StringVar(&f.configDir, "config", "", "configuration directory (default: ~/.config/callcoach)")
	pflag.StringVar(&f.masterID, "master", "", "master-call id to practice against")
	pflag.StringVar(&f.takePath, "take", "", "WAV file containing the practice attempt")
	pflag.StringVar(&f.saveAs, "save", "", "keep a copy of the take in the recordings directory under this name")
	pflag.BoolVar(&f.play, "play", false, "play the master call before scoring the take")
	pflag.BoolVar(&f.verbose, "verbose", false, "enable debug logging")
	pflag.BoolVar(&f.version, "version", false, "print version and exit")
	pflag.Parse()
	return f
}

func main() {
	f := parseFlags()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if f.verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if f.version {
		fmt.Println("callcoach", Version)
		return
	}

	if err := run(f, logger); err != nil {
		logger.Fatal("fatal error", "err", err)
	}
}

func run(f *flags, logger *log.Logger) error {
	if f.masterID == "" || f.takePath == "" {
		return fmt.Errorf("--master and --take are required")
	}

	if f.configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		f.configDir = home + "/.config/callcoach"
	}

	cfgMgr := config.NewManager(f.configDir)
	if err := cfgMgr.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := cfgMgr.Get()
	logger.Info("config loaded", "path", cfgMgr.GetPath())

	mfccCfg := mfcc.Config{
		FrameSize:     cfg.MFCC.FrameSize,
		NumFilters:    cfg.MFCC.NumFilters,
		NumCoeffs:     cfg.MFCC.NumCoeffs,
		LowFreq:       cfg.MFCC.LowFreq,
		HighFreq:      cfg.MFCC.HighFreq,
		LifterLength:  cfg.MFCC.LifterLength,
		CacheCapacity: cfg.Cache.FrameCacheN,
	}
	cache, err := mastercache.NewWithLogger(cfg.Paths.MasterCallsDir, cfg.Paths.FeaturesDir, mfccCfg, cfg.Cache.MaxCostMB, logger)
	if err != nil {
		return fmt.Errorf("build master cache: %w", err)
	}
	logger.Debug("cache ready", "master_calls_dir", cfg.Paths.MasterCallsDir, "features_dir", cfg.Paths.FeaturesDir)

	mgr := engine.NewManager(engine.Config{
		MFCC: mfccCfg,
		VAD: vad.Config{
			EnergyThreshold:   cfg.VAD.EnergyThreshold,
			SilenceThreshold:  cfg.VAD.SilenceThreshold,
			MinSoundWindows:   cfg.VAD.MinSoundWindows,
			MinSilenceWindows: cfg.VAD.MinSilenceWindows,
			HangoverWindows:   cfg.VAD.HangoverWindows,
		},
		Analyzers: engine.AnalyzerEnables{
			Pitch:    cfg.Analyzers.Pitch,
			Harmonic: cfg.Analyzers.Harmonic,
			Cadence:  cfg.Analyzers.Cadence,
		},
		Harmonic: harmonic.Config{
			FFTSize:      1024,
			MaxHarmonics: 6,
			HarmonicFrac: 0.2,
			MaxFormants:  3,
			MinFreq:      60,
			MaxFreq:      4000,
		},
		Pitch: pitch.Config{
			MinFreq:   60,
			MaxFreq:   1500,
			Threshold: 0.15,
		},
		Cadence: cadence.Config{
			FrameSize: 1024,
			HopSize:   512,
			MinTempo:  40,
			MaxTempo:  240,
			MaxLag:    400,
		},
		MaxBufferSize: cfg.MFCC.FrameSize * 4096,
		RecordingsDir: cfg.Paths.RecordingsDir,
		Logger:        logger,
	}, cache)

	decoded, err := wavio.DecodeFile(f.takePath)
	if err != nil {
		return fmt.Errorf("decode practice take: %w", err)
	}
	mono := sample.DownmixMean(decoded.Samples, decoded.Channels)
	if !sample.Finite(mono) {
		return fmt.Errorf("practice take %q contains non-finite samples", f.takePath)
	}

	if f.play {
		if err := playMasterCall(cfg, f.masterID, logger.With("component", "playback")); err != nil {
			logger.Warn("could not play master call", "err", err)
		}
	}

	id, err := mgr.CreateSession(decoded.SampleRate)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer mgr.DestroySession(id)
	logger.Info("session created", "id", id, "sample_rate", decoded.SampleRate)

	if err := mgr.LoadMaster(id, f.masterID); err != nil {
		return fmt.Errorf("bind master call %q: %w", f.masterID, err)
	}

	const chunkSize = 4096
	for start := 0; start < len(mono); start += chunkSize {
		end := start + chunkSize
		if end > len(mono) {
			end = len(mono)
		}
		if err := mgr.ProcessChunk(id, mono[start:end]); err != nil {
			return fmt.Errorf("process chunk at %d: %w", start, err)
		}
	}

	count, _ := mgr.GetFeatureCount(id)
	logger.Debug("features accumulated", "id", id, "count", count)

	similarity, err := mgr.GetSimilarity(id)
	if err != nil {
		return fmt.Errorf("score similarity: %w", err)
	}

	fmt.Printf("similarity: %.4f\n", similarity)

	if cfg.Analyzers.Pitch {
		if p, err := mgr.GetPitchEstimate(id); err == nil && p.Voiced {
			fmt.Printf("pitch: %.1f Hz (confidence %.2f)\n", p.Frequency, p.Confidence)
		}
	}
	if cfg.Analyzers.Harmonic {
		if h, err := mgr.GetHarmonicProfile(id); err == nil {
			fmt.Printf("brightness: %.2f  resonance: %.2f  rasp: %.2f\n", h.Brightness, h.Resonance, h.Rasp)
		}
	}
	if cfg.Analyzers.Cadence {
		if r, err := mgr.GetCadence(id); err == nil {
			fmt.Printf("tempo: %.1f BPM (onsets: %d)\n", r.Tempo.BPM, len(r.Onsets))
		}
	}

	if f.saveAs != "" {
		path, err := mgr.SaveRecording(id, f.saveAs)
		if err != nil {
			return fmt.Errorf("save recording: %w", err)
		}
		logger.Info("take saved", "path", path)
	}

	return nil
}
