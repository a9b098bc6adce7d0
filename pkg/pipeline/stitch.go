package pipeline

import (
	"fmt"
	"path/filepath"

	"riverdebris/internal/models"
	"riverdebris/pkg/imageio"
	"riverdebris/pkg/stitch"
	"riverdebris/pkg/tiling"
)

// Tile variants written next to the image tiles
const (
	RegionKind = "region"
	LogitsKind = "logits"
)

// LogitsName returns the file name of the raw float32 logit tile i
func LogitsName(i int) string {
	return fmt.Sprintf("tile_%03d_%s.f32", i, LogitsKind)
}

// ReassembleDir loads the row-major tile PNGs of one example directory and
// stitches them back into a full raster. kind selects the tile variant, ""
// for image tiles.
func ReassembleDir(dir, kind string, tiler *tiling.Tiler) (*models.Raster, error) {
	count := tiler.Layout().Count()
	tiles := make([]*models.Raster, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(dir, TileName(i, kind))
		img, err := imageio.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load tile %d: %w", i, err)
		}
		tiles[i] = imageio.RasterFromImage(img)
	}
	return tiler.Reassemble(tiles)
}

// StitchLogitsDir scores the model logits of one example against its saved
// region masks and returns the full-resolution anomaly score map. Logit
// tiles are read from logitsDir (dir when empty) as LogitsName(i).
func StitchLogitsDir(dir, logitsDir string, tiler *tiling.Tiler) (*models.Raster, error) {
	if logitsDir == "" {
		logitsDir = dir
	}
	spec := tiler.Layout().Spec
	count := tiler.Layout().Count()
	logits := make([]*models.Raster, count)
	masks := make([]*models.Mask, count)
	for i := 0; i < count; i++ {
		raster, err := imageio.LoadFloat32(filepath.Join(logitsDir, LogitsName(i)), spec.Height, spec.Width)
		if err != nil {
			return nil, fmt.Errorf("failed to load logits %d: %w", i, err)
		}
		img, err := imageio.Load(filepath.Join(dir, TileName(i, RegionKind)))
		if err != nil {
			return nil, fmt.Errorf("failed to load region mask %d: %w", i, err)
		}
		logits[i] = raster
		masks[i] = imageio.MaskFromImage(img)
	}
	return stitch.NewStitcher(tiler).Stitch(logits, masks)
}
