package synth

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"riverdebris/internal/models"
	"riverdebris/pkg/sampling"
)

// Pool spreads injection over several workers. The batch is split into
// contiguous chunks, one per worker. Tile i always draws from its own PCG
// stream (Seed, i), so for a fixed Seed the output does not depend on Workers.
type Pool struct {
	// Workers is the number of goroutines; values < 1 use runtime.NumCPU()
	Workers int

	// Seed selects the random streams
	Seed uint64

	Options        Options
	SamplerOptions sampling.Options

	Logger *zap.Logger
}

// Inject synthesizes one sample per (image, mask) pair, in input order
func (p *Pool) Inject(ctx context.Context, images []*models.Raster, masks []*models.Mask) ([]models.SynthesizedSample, error) {
	if len(images) != len(masks) {
		return nil, fmt.Errorf("%w: %d image tiles, %d mask tiles", ErrShapeMismatch, len(images), len(masks))
	}

	workers := p.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers > len(images) {
		workers = len(images)
	}
	out := make([]models.SynthesizedSample, len(images))
	if workers == 0 {
		return out, nil
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chunk := (len(images) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(images) {
			end = len(images)
		}
		if start >= end {
			break
		}
		wlog := logger.With(zap.Int("worker", w))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				sample, err := p.injectTile(i, images[i], masks[i], wlog)
				if err != nil {
					return err
				}
				out[i] = sample
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// injectTile synthesizes tile i from the stream (Seed, i)
func (p *Pool) injectTile(i int, image *models.Raster, mask *models.Mask, logger *zap.Logger) (models.SynthesizedSample, error) {
	sampler := sampling.NewSampler(sampling.NewSeeded(p.Seed, uint64(i)), p.SamplerOptions)
	sample, err := NewInjector(sampler, p.Options, logger.With(zap.Int("tile", i))).InjectOne(image, mask)
	if err != nil {
		return models.SynthesizedSample{}, fmt.Errorf("tile %d: %w", i, err)
	}
	sample.Index = i
	return sample, nil
}
