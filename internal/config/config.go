// Package config handles engine configuration file management: the three
// required data directories, VAD thresholds, analyzer enable flags, and
// cache limits.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	// Paths holds the three directories the engine needs: master-call
	// audio, feature cache, and user-recording output. Relative paths are
	// resolved against the engine's working directory.
	Paths PathsConfig `yaml:"paths"`

	VAD       VADConfig       `yaml:"vad"`
	Analyzers AnalyzersConfig `yaml:"analyzers"`
	Cache     CacheConfig     `yaml:"cache"`
	MFCC      MFCCConfig      `yaml:"mfcc"`
}

// PathsConfig holds the engine's three configurable directories.
type PathsConfig struct {
	MasterCallsDir string `yaml:"master_calls_dir"`
	FeaturesDir    string `yaml:"features_dir"`
	RecordingsDir  string `yaml:"recordings_dir"`
}

// VADConfig holds default per-session voice-activity thresholds.
type VADConfig struct {
	EnergyThreshold   float64 `yaml:"energy_threshold"`
	SilenceThreshold  float64 `yaml:"silence_threshold"`
	MinSoundWindows   int     `yaml:"min_sound_windows"`
	MinSilenceWindows int     `yaml:"min_silence_windows"`
	HangoverWindows   int     `yaml:"hangover_windows"`
}

// AnalyzersConfig toggles the optional companion analyzers per session.
type AnalyzersConfig struct {
	Pitch    bool `yaml:"pitch"`
	Harmonic bool `yaml:"harmonic"`
	Cadence  bool `yaml:"cadence"`
}

// CacheConfig bounds the master-call cache's in-memory footprint.
type CacheConfig struct {
	// MaxEntries is not consulted; the in-memory tier is bounded by
	// MaxCostMB only.
	MaxEntries  int   `yaml:"max_entries"`
	MaxCostMB   int64 `yaml:"max_cost_mb"`
	FrameCacheN int   `yaml:"frame_cache_entries"`
}

// MFCCConfig holds the default front-end parameters new sessions inherit.
type MFCCConfig struct {
	FrameSize    int     `yaml:"frame_size"`
	HopSize      int     `yaml:"hop_size"` // not consulted: sessions and the master-call cache always hop by FrameSize/2
	NumFilters   int     `yaml:"num_filters"`
	NumCoeffs    int     `yaml:"num_coefficients"`
	LowFreq      float64 `yaml:"low_freq"`
	HighFreq     float64 `yaml:"high_freq"`
	LifterLength int     `yaml:"lifter_length"`
}

// DefaultConfig returns the engine's baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			MasterCallsDir: "data/master_calls",
			FeaturesDir:    "data/features",
			RecordingsDir:  "data/recordings",
		},
		VAD: VADConfig{
			EnergyThreshold:   0.001,
			SilenceThreshold:  0.05,
			MinSoundWindows:   2,
			MinSilenceWindows: 2,
			HangoverWindows:   5,
		},
		Analyzers: AnalyzersConfig{
			Pitch:    true,
			Harmonic: true,
			Cadence:  true,
		},
		Cache: CacheConfig{
			MaxEntries:  1024,
			MaxCostMB:   64,
			FrameCacheN: 256,
		},
		MFCC: MFCCConfig{
			FrameSize:    512,
			HopSize:      256,
			NumFilters:   26,
			NumCoeffs:    13,
			LowFreq:      0,
			HighFreq:     0,
			LifterLength: 22,
		},
	}
}

// Manager loads and saves a Config as YAML.
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a configuration manager rooted at configDir.
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.yaml"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, writing out defaults if no file
// exists yet.
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0o700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("config: read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse config: %w", err)
	}
	m.config = cfg

	return m.ensurePathsWritable()
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0o700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0o600); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}

// ensurePathsWritable creates the three engine directories if missing; a
// directory that cannot be made writable is a fatal configuration error.
func (m *Manager) ensurePathsWritable() error {
	for _, dir := range []string{m.config.Paths.MasterCallsDir, m.config.Paths.FeaturesDir, m.config.Paths.RecordingsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: path %q is not writable: %w", dir, err)
		}
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config { return m.config }

// GetPath returns the config file path.
func (m *Manager) GetPath() string { return m.configPath }

// Update replaces the configuration and persists it.
func (m *Manager) Update(cfg *Config) error {
	m.config = cfg
	return m.Save()
}
