// Package pipeline turns a directory of rasters and region masks into
// synthesized training tiles on disk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"riverdebris/internal/models"
	"riverdebris/pkg/imageio"
	"riverdebris/pkg/sampling"
	"riverdebris/pkg/synth"
	"riverdebris/pkg/tiling"
)

// ManifestFile is the name of the manifest written to the output directory
const ManifestFile = "manifest.yaml"

// Params holds the pipeline parameters
type Params struct {
	// ImageDir contains the rasters (PNG, JPEG or TIFF)
	ImageDir string

	// MaskDir contains one <stem>.png region mask per raster
	MaskDir string

	// OutputDir receives the tiles and the manifest
	OutputDir string

	// ImageHeight and ImageWidth are the size rasters and masks are resized to
	ImageHeight int
	ImageWidth  int

	// Tile is the size of one tile
	Tile models.TileSpec

	// Injection and Sampler configure anomaly synthesis
	Injection synth.Options
	Sampler   sampling.Options

	// NumWorkers is the number of goroutines used for tiling and injection
	NumWorkers int

	// Seed selects the random streams; example i uses Seed+i
	Seed uint64

	// MinInactiveFraction skips examples whose mask covers almost the whole raster
	MinInactiveFraction float64

	// TrainFraction is the share of processed examples put in the train split
	TrainFraction float64

	// SaveTiles writes every tile, region mask and anomaly mask as PNG
	SaveTiles bool
}

// TileEntry describes one synthesized tile in the manifest
type TileEntry struct {
	Index         int    `yaml:"index"`
	Row           int    `yaml:"row"`
	Col           int    `yaml:"col"`
	Label         bool   `yaml:"label"`
	Injected      bool   `yaml:"injected"`
	RegionPixels  int    `yaml:"regionPixels"`
	AnomalyPixels int    `yaml:"anomalyPixels"`
	Image         string `yaml:"image,omitempty"`
	RegionMask    string `yaml:"regionMask,omitempty"`
	AnomalyMask   string `yaml:"anomalyMask,omitempty"`
}

// Split names used in the manifest
const (
	SplitTrain = "train"
	SplitVal   = "val"
)

// ExampleEntry groups the tiles of one raster
type ExampleEntry struct {
	Name  string      `yaml:"name"`
	Split string      `yaml:"split"`
	Tiles []TileEntry `yaml:"tiles"`
}

// Manifest is written as ManifestFile after processing
type Manifest struct {
	ImageHeight int             `yaml:"imageHeight"`
	ImageWidth  int             `yaml:"imageWidth"`
	Tile        models.TileSpec `yaml:"tile"`
	Rows        int             `yaml:"rows"`
	Cols        int             `yaml:"cols"`
	Examples    []ExampleEntry  `yaml:"examples"`
	Summary     synth.Summary   `yaml:"summary"`
}

// Report summarizes a Process run
type Report struct {
	Processed int
	Skipped   []string
	Train     []string
	Val       []string
	Summary   synth.Summary
}

// example pairs a raster file with its mask file
type example struct {
	name      string
	imagePath string
	maskPath  string
}

// Processor runs the pipeline
//
// The processing consists of several steps:
// 1. Pairing rasters with region masks
// 2. Loading and resizing each pair
// 3. Partitioning each pair into tiles
// 4. Injecting synthetic anomalies into eligible tiles
// 5. Writing tiles and the manifest
type Processor struct {
	params *Params
	logger *zap.Logger
	tiler  *tiling.Tiler

	examples []example
}

// NewProcessor creates a processor. It fails with tiling.ErrInvalidDimensions
// if the image size is not a multiple of the tile size.
func NewProcessor(params *Params, logger *zap.Logger) (*Processor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tiler, err := tiling.NewTiler(params.ImageHeight, params.ImageWidth, params.Tile, params.NumWorkers)
	if err != nil {
		return nil, err
	}
	return &Processor{params: params, logger: logger, tiler: tiler}, nil
}

// Tiler returns the tiler fixed by the processor's image and tile size
func (p *Processor) Tiler() *tiling.Tiler {
	return p.tiler
}

// Process runs the complete pipeline
func (p *Processor) Process(ctx context.Context) (Report, error) {
	var report Report

	p.logger.Info("Step 1: Pairing rasters with masks", zap.String("images", p.params.ImageDir))
	skipped, err := p.pairExamples()
	if err != nil {
		return report, fmt.Errorf("failed to pair examples: %w", err)
	}
	report.Skipped = append(report.Skipped, skipped...)

	if err := os.MkdirAll(p.params.OutputDir, 0755); err != nil {
		return report, fmt.Errorf("failed to create output directory: %w", err)
	}

	layout := p.tiler.Layout()
	manifest := Manifest{
		ImageHeight: p.params.ImageHeight,
		ImageWidth:  p.params.ImageWidth,
		Tile:        p.params.Tile,
		Rows:        layout.Rows,
		Cols:        layout.Cols,
	}
	var all []models.SynthesizedSample

	for i, ex := range p.examples {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := p.logger.With(zap.String("example", ex.name))

		log.Debug("Step 2: Loading raster and mask")
		raster, mask, err := p.loadExample(ex)
		if err != nil {
			return report, fmt.Errorf("failed to load %s: %w", ex.name, err)
		}
		if frac := mask.InactiveFraction(); frac < p.params.MinInactiveFraction {
			log.Info("Skipping example, mask leaves too little background",
				zap.Float64("inactiveFraction", frac))
			report.Skipped = append(report.Skipped, ex.name)
			continue
		}

		log.Debug("Step 3: Partitioning into tiles", zap.Int("tiles", layout.Count()))
		tiles, err := p.tiler.Partition(raster, mask)
		if err != nil {
			return report, fmt.Errorf("failed to partition %s: %w", ex.name, err)
		}

		log.Debug("Step 4: Injecting synthetic anomalies")
		images, masks := splitTiles(tiles)
		pool := &synth.Pool{
			Workers:        p.params.NumWorkers,
			Seed:           p.params.Seed + uint64(i),
			Options:        p.params.Injection,
			SamplerOptions: p.params.Sampler,
			Logger:         log,
		}
		samples, err := pool.Inject(ctx, images, masks)
		if err != nil {
			return report, fmt.Errorf("failed to inject anomalies into %s: %w", ex.name, err)
		}

		entry, err := p.writeExample(ex.name, tiles, samples)
		if err != nil {
			return report, err
		}
		manifest.Examples = append(manifest.Examples, entry)
		all = append(all, samples...)
		report.Processed++

		summary := synth.Summarize(samples)
		log.Info("Processed example",
			zap.Int("tiles", summary.Tiles),
			zap.Int("injected", summary.Injected),
			zap.Int("positive", summary.Positive))
	}

	report.Train, report.Val = assignSplits(manifest.Examples, p.params.TrainFraction, p.params.Seed)
	p.logger.Info("Assigned splits", zap.Int("train", len(report.Train)), zap.Int("val", len(report.Val)))

	report.Summary = synth.Summarize(all)
	manifest.Summary = report.Summary

	p.logger.Info("Step 5: Writing manifest", zap.String("path", filepath.Join(p.params.OutputDir, ManifestFile)))
	if err := WriteManifest(filepath.Join(p.params.OutputDir, ManifestFile), &manifest); err != nil {
		return report, err
	}
	return report, nil
}

// pairExamples lists rasters sorted by name and matches each with
// MaskDir/<stem>.png. Rasters without a mask are returned as skipped.
func (p *Processor) pairExamples() ([]string, error) {
	entries, err := os.ReadDir(p.params.ImageDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && imageio.IsImageFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, errors.New("no images found in input directory")
	}
	sort.Strings(names)

	var skipped []string
	p.examples = p.examples[:0]
	for _, name := range names {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		maskPath := filepath.Join(p.params.MaskDir, stem+".png")
		if _, err := os.Stat(maskPath); err != nil {
			p.logger.Warn("No mask for raster, skipping", zap.String("image", name))
			skipped = append(skipped, stem)
			continue
		}
		p.examples = append(p.examples, example{
			name:      stem,
			imagePath: filepath.Join(p.params.ImageDir, name),
			maskPath:  maskPath,
		})
	}
	p.logger.Info("Paired examples", zap.Int("examples", len(p.examples)), zap.Int("skipped", len(skipped)))
	return skipped, nil
}

func (p *Processor) loadExample(ex example) (*models.Raster, *models.Mask, error) {
	img, err := imageio.Load(ex.imagePath)
	if err != nil {
		return nil, nil, err
	}
	maskImg, err := imageio.Load(ex.maskPath)
	if err != nil {
		return nil, nil, err
	}
	w, h := p.params.ImageWidth, p.params.ImageHeight
	raster := imageio.RasterFromImage(imageio.Resize(img, w, h, false))
	mask := imageio.MaskFromImage(imageio.Resize(maskImg, w, h, true))
	return raster, mask, nil
}

func (p *Processor) writeExample(name string, tiles []models.Tile, samples []models.SynthesizedSample) (ExampleEntry, error) {
	entry := ExampleEntry{Name: name, Tiles: make([]TileEntry, len(samples))}
	dir := filepath.Join(p.params.OutputDir, name)

	for i, s := range samples {
		te := TileEntry{
			Index:         i,
			Row:           tiles[i].Row,
			Col:           tiles[i].Col,
			Label:         s.Label,
			Injected:      s.Injected,
			RegionPixels:  tiles[i].Mask.Sum(),
			AnomalyPixels: s.AnomalyMask.Sum(),
		}
		if p.params.SaveTiles {
			te.Image = filepath.Join(name, TileName(i, ""))
			te.RegionMask = filepath.Join(name, TileName(i, RegionKind))
			te.AnomalyMask = filepath.Join(name, TileName(i, "anomaly"))
			if err := imageio.SavePNG(filepath.Join(dir, TileName(i, "")), imageio.RasterToImage(s.Tile)); err != nil {
				return entry, fmt.Errorf("failed to save tile %d of %s: %w", i, name, err)
			}
			if err := imageio.SavePNG(filepath.Join(dir, TileName(i, RegionKind)), imageio.MaskToImage(tiles[i].Mask)); err != nil {
				return entry, fmt.Errorf("failed to save region mask %d of %s: %w", i, name, err)
			}
			if err := imageio.SavePNG(filepath.Join(dir, TileName(i, "anomaly")), imageio.MaskToImage(s.AnomalyMask)); err != nil {
				return entry, fmt.Errorf("failed to save anomaly mask %d of %s: %w", i, name, err)
			}
		}
		entry.Tiles[i] = te
	}
	return entry, nil
}

// TileName returns the file name of tile i, with an optional kind suffix
func TileName(i int, kind string) string {
	if kind == "" {
		return fmt.Sprintf("tile_%03d.png", i)
	}
	return fmt.Sprintf("tile_%03d_%s.png", i, kind)
}

// assignSplits marks every example train or val with Split and returns the
// names in each split
func assignSplits(examples []ExampleEntry, trainFraction float64, seed uint64) (train, val []string) {
	trainIdx, valIdx := Split(len(examples), trainFraction, seed)
	for _, i := range trainIdx {
		examples[i].Split = SplitTrain
		train = append(train, examples[i].Name)
	}
	for _, i := range valIdx {
		examples[i].Split = SplitVal
		val = append(val, examples[i].Name)
	}
	return train, val
}

func splitTiles(tiles []models.Tile) ([]*models.Raster, []*models.Mask) {
	images := make([]*models.Raster, len(tiles))
	masks := make([]*models.Mask, len(tiles))
	for i, t := range tiles {
		images[i] = t.Image
		masks[i] = t.Mask
	}
	return images, masks
}

// WriteManifest encodes the manifest as YAML
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}

// ReadManifest decodes a manifest written by Process
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}
	return &m, nil
}
