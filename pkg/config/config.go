// Package config provides configuration loading and management for riverdebris.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"riverdebris/internal/models"
	"riverdebris/pkg/sampling"
	"riverdebris/pkg/synth"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tiling parameters
	Tiling struct {
		// ImageHeight and ImageWidth are the size every raster is resized to
		// before tiling; they must be multiples of the tile size
		ImageHeight int `yaml:"imageHeight"`
		ImageWidth  int `yaml:"imageWidth"`

		// Tile is the size of one tile
		Tile models.TileSpec `yaml:"tile"`
	} `yaml:"tiling"`

	// Synthesis parameters
	Synthesis struct {
		// Thresholds is the eligibility band on the region pixel count of a tile
		Thresholds synth.Thresholds `yaml:"thresholds"`

		// MaxAttempts bounds the region sampling retries
		MaxAttempts int `yaml:"maxAttempts"`

		// MinHalfFraction and MaxHalfFraction bound random half extents
		MinHalfFraction float64 `yaml:"minHalfFraction"`
		MaxHalfFraction float64 `yaml:"maxHalfFraction"`

		// RequireContained rejects destination boxes that cover inactive pixels
		RequireContained bool `yaml:"requireContained"`
	} `yaml:"synthesis"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many goroutines inject anomalies in parallel
		NumWorkers int `yaml:"numWorkers"`

		// Seed selects the per-worker random streams
		Seed uint64 `yaml:"seed"`

		// MinInactiveFraction skips examples whose mask leaves less than this
		// share of the raster outside the region of interest
		MinInactiveFraction float64 `yaml:"minInactiveFraction"`

		// TrainFraction is the share of examples assigned to the train split
		TrainFraction float64 `yaml:"trainFraction"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SaveTiles writes every tile and anomaly mask as PNG
		SaveTiles bool `yaml:"saveTiles"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default tiling parameters
	cfg.Tiling.ImageHeight = 2048
	cfg.Tiling.ImageWidth = 2048
	cfg.Tiling.Tile = models.TileSpec{Height: 256, Width: 256}

	// Set default synthesis parameters
	cfg.Synthesis.Thresholds = synth.DefaultThresholds()
	cfg.Synthesis.MaxAttempts = synth.DefaultOptions().MaxAttempts
	cfg.Synthesis.MinHalfFraction = sampling.DefaultOptions().MinHalfFraction
	cfg.Synthesis.MaxHalfFraction = sampling.DefaultOptions().MaxHalfFraction

	// Set default processing parameters
	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Seed = 1337
	cfg.Processing.MinInactiveFraction = 0.05
	cfg.Processing.TrainFraction = 0.8

	cfg.Output.SaveTiles = true

	return cfg
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	if c.Tiling.Tile.Height <= 0 || c.Tiling.Tile.Width <= 0 {
		errs = append(errs, fmt.Errorf("tile size %dx%d must be positive",
			c.Tiling.Tile.Width, c.Tiling.Tile.Height))
	} else if c.Tiling.ImageHeight%c.Tiling.Tile.Height != 0 || c.Tiling.ImageWidth%c.Tiling.Tile.Width != 0 {
		errs = append(errs, fmt.Errorf("image size %dx%d is not divisible by tile size %dx%d",
			c.Tiling.ImageWidth, c.Tiling.ImageHeight, c.Tiling.Tile.Width, c.Tiling.Tile.Height))
	}
	if c.Tiling.ImageHeight <= 0 || c.Tiling.ImageWidth <= 0 {
		errs = append(errs, fmt.Errorf("image size %dx%d must be positive",
			c.Tiling.ImageWidth, c.Tiling.ImageHeight))
	}
	if c.Synthesis.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("maxAttempts must be positive, got %d", c.Synthesis.MaxAttempts))
	}
	if c.Synthesis.Thresholds.Low < 0 || c.Synthesis.Thresholds.High < 0 {
		errs = append(errs, fmt.Errorf("thresholds must be non-negative"))
	}
	if c.Synthesis.MinHalfFraction <= 0 || c.Synthesis.MaxHalfFraction <= c.Synthesis.MinHalfFraction {
		errs = append(errs, fmt.Errorf("half fractions must satisfy 0 < min < max, got %v, %v",
			c.Synthesis.MinHalfFraction, c.Synthesis.MaxHalfFraction))
	}
	if c.Processing.MinInactiveFraction < 0 || c.Processing.MinInactiveFraction > 1 {
		errs = append(errs, fmt.Errorf("minInactiveFraction must be in [0, 1]"))
	}
	if c.Processing.TrainFraction < 0 || c.Processing.TrainFraction > 1 {
		errs = append(errs, fmt.Errorf("trainFraction must be in [0, 1], got %v", c.Processing.TrainFraction))
	}
	return errors.Join(errs...)
}

// InjectionOptions returns the injector options described by the config
func (c *Config) InjectionOptions() synth.Options {
	return synth.Options{
		Thresholds:  c.Synthesis.Thresholds,
		MaxAttempts: c.Synthesis.MaxAttempts,
	}
}

// SamplerOptions returns the region sampler options described by the config
func (c *Config) SamplerOptions() sampling.Options {
	return sampling.Options{
		MinHalfFraction:  c.Synthesis.MinHalfFraction,
		MaxHalfFraction:  c.Synthesis.MaxHalfFraction,
		RequireContained: c.Synthesis.RequireContained,
	}
}

// LoadConfig loads configuration from a YAML file and validates it.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
