// Package synth manufactures positive training examples by transplanting
// pixel content from outside a tile's region of interest into it.
package synth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"riverdebris/internal/models"
	"riverdebris/pkg/sampling"
)

// ErrShapeMismatch is returned when image and mask tiles do not pair up
var ErrShapeMismatch = errors.New("tile shape mismatch")

// ReferenceTileArea is the tile area the default thresholds were tuned for (256x256)
const ReferenceTileArea = 256 * 256

// Thresholds is the eligibility band for injection. A tile is eligible when
// Low < active < area - High, where active is the number of region pixels.
type Thresholds struct {
	Low  int `yaml:"low"`
	High int `yaml:"high"`

	// ScaleWithArea rescales Low and High by area / ReferenceTileArea
	ScaleWithArea bool `yaml:"scaleWithArea"`
}

// DefaultThresholds returns the absolute (1000, 1000) band
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 1000, High: 1000}
}

// Bounds returns the effective (low, high) pair for a tile of the given area
func (t Thresholds) Bounds(area int) (low, high int) {
	if !t.ScaleWithArea {
		return t.Low, t.High
	}
	scale := float64(area) / ReferenceTileArea
	return int(float64(t.Low) * scale), int(float64(t.High) * scale)
}

// Eligible reports whether a tile with the given active pixel count may receive an anomaly
func (t Thresholds) Eligible(active, area int) bool {
	low, high := t.Bounds(area)
	return low < active && active < area-high
}

// Options configures an Injector
type Options struct {
	Thresholds  Thresholds
	MaxAttempts int
}

// DefaultOptions returns the default thresholds and a 100 attempt budget
func DefaultOptions() Options {
	return Options{
		Thresholds:  DefaultThresholds(),
		MaxAttempts: 100,
	}
}

// Injector copies donor patches from outside the region of interest into it.
// It owns a Sampler and is therefore not safe for concurrent use.
type Injector struct {
	sampler *sampling.Sampler
	opts    Options
	logger  *zap.Logger
}

// NewInjector creates an injector. A nil logger disables logging.
func NewInjector(sampler *sampling.Sampler, opts Options, logger *zap.Logger) *Injector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	return &Injector{sampler: sampler, opts: opts, logger: logger}
}

// Inject synthesizes one sample per (image, mask) pair, in input order.
// The context is checked between tiles.
func (inj *Injector) Inject(ctx context.Context, images []*models.Raster, masks []*models.Mask) ([]models.SynthesizedSample, error) {
	if len(images) != len(masks) {
		return nil, fmt.Errorf("%w: %d image tiles, %d mask tiles", ErrShapeMismatch, len(images), len(masks))
	}
	out := make([]models.SynthesizedSample, len(images))
	if err := inj.injectRange(ctx, images, masks, out, 0, len(images)); err != nil {
		return nil, err
	}
	return out, nil
}

func (inj *Injector) injectRange(ctx context.Context, images []*models.Raster, masks []*models.Mask,
	out []models.SynthesizedSample, start, end int) error {
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample, err := inj.InjectOne(images[i], masks[i])
		if err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
		sample.Index = i
		out[i] = sample
	}
	return nil
}

// InjectOne synthesizes a sample from a single tile.
//
// Ineligible tiles and tiles where no destination or donor region can be
// found are passed through unmodified with an empty anomaly mask and a
// false label. The input tile is never modified.
func (inj *Injector) InjectOne(image *models.Raster, mask *models.Mask) (models.SynthesizedSample, error) {
	if image == nil || mask == nil {
		return models.SynthesizedSample{}, fmt.Errorf("%w: nil tile", ErrShapeMismatch)
	}
	if image.Height != mask.Height || image.Width != mask.Width ||
		len(image.Data) != image.Channels*image.Height*image.Width ||
		len(mask.Data) != mask.Height*mask.Width {
		return models.SynthesizedSample{}, fmt.Errorf("%w: image %dx%dx%d, mask %dx%d",
			ErrShapeMismatch, image.Channels, image.Width, image.Height, mask.Width, mask.Height)
	}

	active := mask.Sum()
	if !inj.opts.Thresholds.Eligible(active, mask.Area()) {
		return passThrough(image), nil
	}

	dst, err := inj.sampler.Sample(mask, 0, 0, inj.opts.MaxAttempts)
	if err != nil {
		inj.logger.Debug("No destination region, passing tile through",
			zap.Int("active", active), zap.Error(err))
		return passThrough(image), nil
	}
	src, err := inj.sampler.Sample(mask.Invert(), dst.HalfWidth, dst.HalfHeight, inj.opts.MaxAttempts)
	if err != nil {
		inj.logger.Debug("No donor region, passing tile through",
			zap.Int("active", active),
			zap.Int("halfWidth", dst.HalfWidth),
			zap.Int("halfHeight", dst.HalfHeight),
			zap.Error(err))
		return passThrough(image), nil
	}

	modified := transplant(image, src, dst)
	anomaly := DiffMask(image, modified).And(mask)
	return models.SynthesizedSample{
		Tile:        modified,
		AnomalyMask: anomaly,
		Label:       anomaly.Sum() > 0,
		Injected:    true,
		Destination: &dst,
		Source:      &src,
	}, nil
}

// transplant returns a copy of image whose dst block holds the pixels of the
// src block, across all channels. Donor pixels are read from the original.
func transplant(image *models.Raster, src, dst models.Region) *models.Raster {
	out := image.Clone()
	w := dst.Width()
	for c := 0; c < image.Channels; c++ {
		from := image.Plane(c)
		to := out.Plane(c)
		for y := 0; y < dst.Height(); y++ {
			s := (src.Y1+y)*image.Width + src.X1
			d := (dst.Y1+y)*image.Width + dst.X1
			copy(to[d:d+w], from[s:s+w])
		}
	}
	return out
}

// DiffMask marks the pixels where a and b differ in any channel.
// Both rasters must have the same shape.
func DiffMask(a, b *models.Raster) *models.Mask {
	m := models.NewMask(a.Height, a.Width)
	size := a.Height * a.Width
	for c := 0; c < a.Channels; c++ {
		pa, pb := a.Plane(c), b.Plane(c)
		for i := 0; i < size; i++ {
			if pa[i] != pb[i] {
				m.Data[i] = true
			}
		}
	}
	return m
}

func passThrough(image *models.Raster) models.SynthesizedSample {
	return models.SynthesizedSample{
		Tile:        image.Clone(),
		AnomalyMask: models.NewMask(image.Height, image.Width),
		Label:       false,
	}
}
