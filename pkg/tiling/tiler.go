// Package tiling partitions rasters and masks into a fixed grid of equal-size
// tiles and reassembles tiles into the original raster.
package tiling

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"riverdebris/internal/models"
)

var (
	// ErrInvalidDimensions is returned when a raster cannot be tiled by the
	// configured TileSpec. The raster must be resized upstream.
	ErrInvalidDimensions = errors.New("invalid dimensions")

	// ErrShapeMismatch is returned when reassembly is given the wrong number
	// of tiles or a tile of the wrong size.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Tiler splits rasters of a fixed size into tiles of a fixed size.
//
// The tile copy work is spread across goroutines; each goroutine owns a
// disjoint set of output tiles, so no locking is needed and the output order
// is always row-major.
type Tiler struct {
	// layout is the grid fixed at construction
	layout models.Layout

	// workers bounds the number of goroutines copying tiles
	workers int
}

// NewTiler creates a tiler for rasters of size height x width.
//
// Parameters:
//   - height, width: spatial size of every raster this tiler will accept
//   - spec: size of one tile, must divide height and width evenly
//   - workers: goroutines used for copying; values < 1 use runtime.NumCPU()
//
// Returns:
//   - the tiler, or ErrInvalidDimensions if the size is not tileable
func NewTiler(height, width int, spec models.TileSpec, workers int) (*Tiler, error) {
	layout, err := NewLayout(height, width, spec)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Tiler{layout: layout, workers: workers}, nil
}

// NewLayout derives the tile grid for a height x width raster
func NewLayout(height, width int, spec models.TileSpec) (models.Layout, error) {
	if spec.Height <= 0 || spec.Width <= 0 {
		return models.Layout{}, fmt.Errorf("%w: tile size %dx%d must be positive",
			ErrInvalidDimensions, spec.Width, spec.Height)
	}
	if height <= 0 || width <= 0 {
		return models.Layout{}, fmt.Errorf("%w: raster size %dx%d must be positive",
			ErrInvalidDimensions, width, height)
	}
	if height%spec.Height != 0 || width%spec.Width != 0 {
		return models.Layout{}, fmt.Errorf("%w: raster %dx%d is not divisible by tile %dx%d",
			ErrInvalidDimensions, width, height, spec.Width, spec.Height)
	}
	return models.Layout{
		Rows: height / spec.Height,
		Cols: width / spec.Width,
		Spec: spec,
	}, nil
}

// Layout returns the tile grid of this tiler
func (t *Tiler) Layout() models.Layout {
	return t.layout
}

// Partition splits a raster and its region mask into row-major tiles.
// Every tile holds independent copies of the raster and mask samples.
func (t *Tiler) Partition(raster *models.Raster, mask *models.Mask) ([]models.Tile, error) {
	if err := t.checkRaster(raster); err != nil {
		return nil, err
	}
	if err := t.checkMask(mask); err != nil {
		return nil, err
	}

	tiles := make([]models.Tile, t.layout.Count())
	err := t.forEachTile(func(i int) error {
		row, col := t.layout.Position(i)
		tiles[i] = models.Tile{
			Index: i,
			Row:   row,
			Col:   col,
			Image: t.cutRaster(raster, i),
			Mask:  t.cutMask(mask, i),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tiles, nil
}

// PartitionImage splits a raster into row-major tiles
func (t *Tiler) PartitionImage(raster *models.Raster) ([]*models.Raster, error) {
	if err := t.checkRaster(raster); err != nil {
		return nil, err
	}
	tiles := make([]*models.Raster, t.layout.Count())
	err := t.forEachTile(func(i int) error {
		tiles[i] = t.cutRaster(raster, i)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tiles, nil
}

// PartitionMask splits a mask into row-major tiles
func (t *Tiler) PartitionMask(mask *models.Mask) ([]*models.Mask, error) {
	if err := t.checkMask(mask); err != nil {
		return nil, err
	}
	tiles := make([]*models.Mask, t.layout.Count())
	err := t.forEachTile(func(i int) error {
		tiles[i] = t.cutMask(mask, i)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tiles, nil
}

// Reassemble places each tile at its row-major offset and returns the full raster
func (t *Tiler) Reassemble(tiles []*models.Raster) (*models.Raster, error) {
	if len(tiles) != t.layout.Count() {
		return nil, fmt.Errorf("%w: got %d tiles, layout needs %d",
			ErrShapeMismatch, len(tiles), t.layout.Count())
	}
	spec := t.layout.Spec
	channels := 0
	for i, tile := range tiles {
		if tile == nil || tile.Height != spec.Height || tile.Width != spec.Width {
			return nil, fmt.Errorf("%w: tile %d does not match tile size %dx%d",
				ErrShapeMismatch, i, spec.Width, spec.Height)
		}
		if i == 0 {
			channels = tile.Channels
		} else if tile.Channels != channels {
			return nil, fmt.Errorf("%w: tile %d has %d channels, expected %d",
				ErrShapeMismatch, i, tile.Channels, channels)
		}
		if len(tile.Data) != channels*spec.Area() {
			return nil, fmt.Errorf("%w: tile %d holds %d samples, expected %d",
				ErrShapeMismatch, i, len(tile.Data), channels*spec.Area())
		}
	}

	out := models.NewRaster(channels, t.layout.Height(), t.layout.Width())
	err := t.forEachTile(func(i int) error {
		t.pasteRaster(out, tiles[i], i)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReassembleMask is the mask counterpart of Reassemble
func (t *Tiler) ReassembleMask(tiles []*models.Mask) (*models.Mask, error) {
	if len(tiles) != t.layout.Count() {
		return nil, fmt.Errorf("%w: got %d mask tiles, layout needs %d",
			ErrShapeMismatch, len(tiles), t.layout.Count())
	}
	spec := t.layout.Spec
	for i, tile := range tiles {
		if tile == nil || tile.Height != spec.Height || tile.Width != spec.Width ||
			len(tile.Data) != spec.Area() {
			return nil, fmt.Errorf("%w: mask tile %d does not match tile size %dx%d",
				ErrShapeMismatch, i, spec.Width, spec.Height)
		}
	}

	out := models.NewMask(t.layout.Height(), t.layout.Width())
	err := t.forEachTile(func(i int) error {
		origin := t.layout.Offset(i)
		for y := 0; y < spec.Height; y++ {
			dst := (origin.Y+y)*out.Width + origin.X
			copy(out.Data[dst:dst+spec.Width], tiles[i].Data[y*spec.Width:(y+1)*spec.Width])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reassemble stitches row-major tiles back into a raster for the given layout
func Reassemble(tiles []*models.Raster, layout models.Layout) (*models.Raster, error) {
	t := &Tiler{layout: layout, workers: runtime.NumCPU()}
	if layout.Rows <= 0 || layout.Cols <= 0 {
		return nil, fmt.Errorf("%w: empty layout %dx%d", ErrShapeMismatch, layout.Cols, layout.Rows)
	}
	return t.Reassemble(tiles)
}

func (t *Tiler) checkRaster(raster *models.Raster) error {
	if raster == nil {
		return fmt.Errorf("%w: nil raster", ErrInvalidDimensions)
	}
	if raster.Height != t.layout.Height() || raster.Width != t.layout.Width() {
		return fmt.Errorf("%w: raster %dx%d does not match layout %dx%d",
			ErrInvalidDimensions, raster.Width, raster.Height, t.layout.Width(), t.layout.Height())
	}
	if raster.Channels < 1 || len(raster.Data) != raster.Channels*raster.Height*raster.Width {
		return fmt.Errorf("%w: raster holds %d samples for %d channels",
			ErrInvalidDimensions, len(raster.Data), raster.Channels)
	}
	return nil
}

func (t *Tiler) checkMask(mask *models.Mask) error {
	if mask == nil {
		return fmt.Errorf("%w: nil mask", ErrInvalidDimensions)
	}
	if mask.Height != t.layout.Height() || mask.Width != t.layout.Width() ||
		len(mask.Data) != mask.Height*mask.Width {
		return fmt.Errorf("%w: mask %dx%d does not match layout %dx%d",
			ErrInvalidDimensions, mask.Width, mask.Height, t.layout.Width(), t.layout.Height())
	}
	return nil
}

// forEachTile runs fn once per tile index over at most t.workers goroutines.
// Indices are handed out in contiguous chunks; the first error stops the
// remaining chunks from starting and is returned.
func (t *Tiler) forEachTile(fn func(i int) error) error {
	count := t.layout.Count()
	workers := t.workers
	if workers > count {
		workers = count
	}
	if workers <= 1 {
		for i := 0; i < count; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	chunk := (count + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < count; start += chunk {
		end := start + chunk
		if end > count {
			end = count
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (t *Tiler) cutRaster(raster *models.Raster, i int) *models.Raster {
	spec := t.layout.Spec
	origin := t.layout.Offset(i)
	tile := models.NewRaster(raster.Channels, spec.Height, spec.Width)
	for c := 0; c < raster.Channels; c++ {
		src := raster.Plane(c)
		dst := tile.Plane(c)
		for y := 0; y < spec.Height; y++ {
			s := (origin.Y+y)*raster.Width + origin.X
			copy(dst[y*spec.Width:(y+1)*spec.Width], src[s:s+spec.Width])
		}
	}
	return tile
}

func (t *Tiler) cutMask(mask *models.Mask, i int) *models.Mask {
	spec := t.layout.Spec
	origin := t.layout.Offset(i)
	tile := models.NewMask(spec.Height, spec.Width)
	for y := 0; y < spec.Height; y++ {
		s := (origin.Y+y)*mask.Width + origin.X
		copy(tile.Data[y*spec.Width:(y+1)*spec.Width], mask.Data[s:s+spec.Width])
	}
	return tile
}

func (t *Tiler) pasteRaster(out, tile *models.Raster, i int) {
	spec := t.layout.Spec
	origin := t.layout.Offset(i)
	for c := 0; c < tile.Channels; c++ {
		src := tile.Plane(c)
		dst := out.Plane(c)
		for y := 0; y < spec.Height; y++ {
			d := (origin.Y+y)*out.Width + origin.X
			copy(dst[d:d+spec.Width], src[y*spec.Width:(y+1)*spec.Width])
		}
	}
}
