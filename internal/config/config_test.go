package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Load())

	require.FileExists(t, filepath.Join(dir, "config.yaml"))
	require.Equal(t, DefaultConfig().MFCC, m.Get().MFCC)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Load())

	cfg := m.Get()
	cfg.VAD.EnergyThreshold = 0.5
	require.NoError(t, m.Update(cfg))

	m2 := NewManager(dir)
	require.NoError(t, m2.Load())
	require.Equal(t, 0.5, m2.Get().VAD.EnergyThreshold)
}

func TestLoadCreatesDataDirectories(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Load())

	cfg := m.Get()
	cfg.Paths.MasterCallsDir = filepath.Join(dir, "masters")
	cfg.Paths.FeaturesDir = filepath.Join(dir, "features")
	cfg.Paths.RecordingsDir = filepath.Join(dir, "recordings")
	require.NoError(t, m.Update(cfg))

	m2 := NewManager(dir)
	require.NoError(t, m2.Load())

	require.DirExists(t, m2.Get().Paths.MasterCallsDir)
	require.DirExists(t, m2.Get().Paths.FeaturesDir)
	require.DirExists(t, m2.Get().Paths.RecordingsDir)
}
