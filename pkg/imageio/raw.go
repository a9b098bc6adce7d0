package imageio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"riverdebris/internal/models"
)

// LoadFloat32 reads a headerless little-endian float32 raster of
// height x width, stored channel-major (the layout of a (C, H, W) array
// dumped with numpy's tofile). The channel count is derived from the file size.
func LoadFloat32(path string, height, width int) (*models.Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	plane := 4 * height * width
	if plane <= 0 || len(data) == 0 || len(data)%plane != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a whole number of %dx%d float32 planes",
			path, len(data), width, height)
	}

	raster := models.NewRaster(len(data)/plane, height, width)
	for i := range raster.Data {
		raster.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return raster, nil
}

// SaveFloat32 writes raster in the format read by LoadFloat32
func SaveFloat32(path string, raster *models.Raster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	buf := make([]byte, 4*len(raster.Data))
	for i, v := range raster.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return os.WriteFile(path, buf, 0644)
}
