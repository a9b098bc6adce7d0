// Package stitch turns per-tile model outputs into a full-resolution
// anomaly score map.
package stitch

import (
	"fmt"
	"math"

	"riverdebris/internal/models"
	"riverdebris/pkg/tiling"
)

// AnomalyScore converts segmentation logits into anomaly scores clipped to
// the region of interest: (1 - sigmoid(logit)) * mask, per channel.
// The region mask must match the logits' spatial size.
func AnomalyScore(logits *models.Raster, mask *models.Mask) (*models.Raster, error) {
	if logits == nil || mask == nil || logits.Height != mask.Height || logits.Width != mask.Width {
		return nil, fmt.Errorf("%w: logits and mask sizes differ", tiling.ErrShapeMismatch)
	}
	if len(logits.Data) != logits.Channels*logits.Height*logits.Width || len(mask.Data) != mask.Height*mask.Width {
		return nil, fmt.Errorf("%w: logits hold %d samples, mask %d for %dx%d",
			tiling.ErrShapeMismatch, len(logits.Data), len(mask.Data), logits.Width, logits.Height)
	}
	out := models.NewRaster(logits.Channels, logits.Height, logits.Width)
	size := logits.Height * logits.Width
	for c := 0; c < logits.Channels; c++ {
		src, dst := logits.Plane(c), out.Plane(c)
		for i := 0; i < size; i++ {
			if mask.Data[i] {
				dst[i] = 1 - sigmoid(src[i])
			}
		}
	}
	return out, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Stitcher reassembles per-tile predictions with a fixed tile layout
type Stitcher struct {
	tiler *tiling.Tiler
}

// NewStitcher creates a stitcher that uses tiler's layout
func NewStitcher(tiler *tiling.Tiler) *Stitcher {
	return &Stitcher{tiler: tiler}
}

// Stitch scores every logit tile against its region tile and reassembles
// the scores into one raster. Tiles are expected in row-major order.
func (s *Stitcher) Stitch(logitTiles []*models.Raster, maskTiles []*models.Mask) (*models.Raster, error) {
	if len(logitTiles) != len(maskTiles) {
		return nil, fmt.Errorf("%w: %d logit tiles, %d mask tiles",
			tiling.ErrShapeMismatch, len(logitTiles), len(maskTiles))
	}
	scored := make([]*models.Raster, len(logitTiles))
	for i := range logitTiles {
		score, err := AnomalyScore(logitTiles[i], maskTiles[i])
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", i, err)
		}
		scored[i] = score
	}
	return s.tiler.Reassemble(scored)
}

// Threshold marks pixels of one channel whose value is at least cut
func Threshold(raster *models.Raster, channel int, cut float64) *models.Mask {
	m := models.NewMask(raster.Height, raster.Width)
	for i, v := range raster.Plane(channel) {
		m.Data[i] = v >= cut
	}
	return m
}
