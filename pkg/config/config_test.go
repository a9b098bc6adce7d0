package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 256, cfg.Tiling.Tile.Height)
	assert.Equal(t, 1000, cfg.Synthesis.Thresholds.Low)
	assert.Equal(t, 1000, cfg.Synthesis.Thresholds.High)
	assert.Equal(t, 0.02, cfg.SamplerOptions().MinHalfFraction)
	assert.Equal(t, 0.05, cfg.SamplerOptions().MaxHalfFraction)
	assert.Equal(t, cfg.Synthesis.MaxAttempts, cfg.InjectionOptions().MaxAttempts)
	assert.Equal(t, 0.8, cfg.Processing.TrainFraction)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tiling:
  imageHeight: 512
  imageWidth: 768
  tile:
    height: 128
    width: 128
synthesis:
  thresholds:
    low: 250
    high: 300
    scaleWithArea: true
  maxAttempts: 20
processing:
  seed: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 768, cfg.Tiling.ImageWidth)
	assert.Equal(t, 128, cfg.Tiling.Tile.Width)
	assert.Equal(t, 250, cfg.Synthesis.Thresholds.Low)
	assert.Equal(t, 300, cfg.Synthesis.Thresholds.High)
	assert.True(t, cfg.Synthesis.Thresholds.ScaleWithArea)
	assert.Equal(t, 20, cfg.Synthesis.MaxAttempts)
	assert.Equal(t, uint64(7), cfg.Processing.Seed)
	// untouched keys keep their defaults
	assert.Equal(t, 0.05, cfg.Synthesis.MaxHalfFraction)
	assert.True(t, cfg.Output.SaveTiles)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiling: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tiling:
  imageWidth: 1000
synthesis:
  maxAttempts: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not divisible")
	assert.Contains(t, err.Error(), "maxAttempts")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"indivisible image", func(c *Config) { c.Tiling.ImageWidth = 1000 }},
		{"zero tile", func(c *Config) { c.Tiling.Tile.Height = 0 }},
		{"zero attempts", func(c *Config) { c.Synthesis.MaxAttempts = 0 }},
		{"negative threshold", func(c *Config) { c.Synthesis.Thresholds.Low = -1 }},
		{"inverted fractions", func(c *Config) { c.Synthesis.MinHalfFraction = 0.1 }},
		{"inactive fraction", func(c *Config) { c.Processing.MinInactiveFraction = 2 }},
		{"train fraction", func(c *Config) { c.Processing.TrainFraction = 1.5 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
