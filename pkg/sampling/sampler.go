// Package sampling finds random axis-aligned regions inside the active area
// of a mask.
package sampling

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"riverdebris/internal/models"
)

var (
	// ErrEmptyRegion is returned when the mask has no active pixel to centre a region on
	ErrEmptyRegion = errors.New("mask has no active pixels")

	// ErrSamplingExhausted is returned when no candidate fit within the attempt budget
	ErrSamplingExhausted = errors.New("region sampling exhausted")

	// ErrInvalidAttempts is returned for a non-positive attempt budget
	ErrInvalidAttempts = errors.New("max attempts must be positive")
)

// Options controls how half extents are drawn and which candidates are accepted
type Options struct {
	// MinHalfFraction and MaxHalfFraction bound random half extents as a
	// fraction of the mask size: [min*W, max*W) and [min*H, max*H).
	MinHalfFraction float64
	MaxHalfFraction float64

	// RequireContained additionally rejects candidates whose footprint holds
	// any inactive mask pixel.
	RequireContained bool
}

// DefaultOptions returns the 2%-5% half extent band
func DefaultOptions() Options {
	return Options{
		MinHalfFraction: 0.02,
		MaxHalfFraction: 0.05,
	}
}

// Sampler draws regions from an injected random source. A Sampler is not
// safe for concurrent use; give every worker its own.
type Sampler struct {
	rng  *rand.Rand
	opts Options
}

// NewSampler creates a sampler drawing from rng
func NewSampler(rng *rand.Rand, opts Options) *Sampler {
	if opts.MinHalfFraction <= 0 && opts.MaxHalfFraction <= 0 {
		def := DefaultOptions()
		opts.MinHalfFraction = def.MinHalfFraction
		opts.MaxHalfFraction = def.MaxHalfFraction
	}
	return &Sampler{rng: rng, opts: opts}
}

// NewSeeded returns a PCG random source for the given seed and stream
func NewSeeded(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// Sample finds a region of size (2*halfWidth, 2*halfHeight) centred on a
// random active pixel of mask.
//
// A half extent of zero is drawn at random from the configured band. Both
// extents are fixed before the first attempt, so every candidate has the
// same size. A candidate is accepted only if the box lies entirely inside
// the mask bounds without clipping.
//
// Parameters:
//   - mask: the area the region centre is drawn from
//   - halfWidth, halfHeight: requested half extents, or 0 for random
//   - maxAttempts: number of candidates tried before giving up
//
// Returns:
//   - the accepted region, ErrEmptyRegion if mask has no active pixel, or
//     ErrSamplingExhausted if every candidate was rejected
func (s *Sampler) Sample(mask *models.Mask, halfWidth, halfHeight, maxAttempts int) (models.Region, error) {
	if maxAttempts < 1 {
		return models.Region{}, fmt.Errorf("%w: got %d", ErrInvalidAttempts, maxAttempts)
	}
	if halfWidth < 0 || halfHeight < 0 {
		return models.Region{}, fmt.Errorf("negative half extent %dx%d", halfWidth, halfHeight)
	}

	active := mask.ActivePixels()
	if len(active) == 0 {
		return models.Region{}, ErrEmptyRegion
	}

	if halfHeight == 0 {
		halfHeight = s.drawHalf(mask.Height)
	}
	if halfWidth == 0 {
		halfWidth = s.drawHalf(mask.Width)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		center := active[s.rng.IntN(len(active))]

		region := models.Region{
			X1:         center.X - halfWidth,
			Y1:         center.Y - halfHeight,
			X2:         center.X + halfWidth,
			Y2:         center.Y + halfHeight,
			HalfWidth:  halfWidth,
			HalfHeight: halfHeight,
		}
		if !inBounds(region, mask.Width, mask.Height) {
			continue
		}
		if s.opts.RequireContained && !fullyActive(mask, region) {
			continue
		}
		return region, nil
	}

	return models.Region{}, fmt.Errorf("%w: no %dx%d region after %d attempts",
		ErrSamplingExhausted, 2*halfWidth, 2*halfHeight, maxAttempts)
}

// drawHalf picks a half extent uniformly from [floor(min*size), floor(max*size)),
// never below 1 and never from an empty range
func (s *Sampler) drawHalf(size int) int {
	lo := int(float64(size) * s.opts.MinHalfFraction)
	hi := int(float64(size) * s.opts.MaxHalfFraction)
	if lo < 1 {
		lo = 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo + s.rng.IntN(hi-lo)
}

// inBounds reports whether the un-clipped region lies inside [0, w) x [0, h)
func inBounds(r models.Region, w, h int) bool {
	return r.X1 >= 0 && r.Y1 >= 0 && r.X2 <= w && r.Y2 <= h
}

func fullyActive(mask *models.Mask, r models.Region) bool {
	for y := r.Y1; y < r.Y2; y++ {
		for x := r.X1; x < r.X2; x++ {
			if !mask.At(y, x) {
				return false
			}
		}
	}
	return true
}
