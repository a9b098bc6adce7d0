package tiling

import (
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"riverdebris/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// createTestRaster fills a raster with a pattern that is unique per sample
func createTestRaster(channels, height, width int) *models.Raster {
	r := models.NewRaster(channels, height, width)
	for i := range r.Data {
		r.Data[i] = float64(i) / float64(len(r.Data))
	}
	return r
}

func createTestMask(height, width int, active func(x, y int) bool) *models.Mask {
	m := models.NewMask(height, width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m.Set(y, x, active(x, y))
		}
	}
	return m
}

func TestNewTilerLayout(t *testing.T) {
	tiler, err := NewTiler(1024, 768, models.TileSpec{Height: 256, Width: 256}, 2)
	require.NoError(t, err)

	layout := tiler.Layout()
	assert.Equal(t, 4, layout.Rows)
	assert.Equal(t, 3, layout.Cols)
	assert.Equal(t, 12, layout.Count())
}

func TestNewTilerInvalidDimensions(t *testing.T) {
	testCases := []struct {
		name          string
		height, width int
		spec          models.TileSpec
	}{
		{"height not divisible", 100, 64, models.TileSpec{Height: 32, Width: 32}},
		{"width not divisible", 64, 100, models.TileSpec{Height: 32, Width: 32}},
		{"zero tile", 64, 64, models.TileSpec{Height: 0, Width: 32}},
		{"zero raster", 0, 64, models.TileSpec{Height: 32, Width: 32}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTiler(tc.height, tc.width, tc.spec, 1)
			assert.ErrorIs(t, err, ErrInvalidDimensions)
		})
	}
}

func TestPartitionRejectsMismatchedInputs(t *testing.T) {
	tiler, err := NewTiler(8, 8, models.TileSpec{Height: 4, Width: 4}, 1)
	require.NoError(t, err)

	_, err = tiler.Partition(createTestRaster(3, 8, 12), models.NewMask(8, 12))
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = tiler.Partition(createTestRaster(3, 8, 8), models.NewMask(4, 8))
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = tiler.PartitionImage(nil)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

// TestPartitionQuadrants verifies ordering and contents on a 2x2 grid
func TestPartitionQuadrants(t *testing.T) {
	width, height := 4, 4
	raster := models.NewRaster(1, height, width)
	// [A][B]
	// [C][D]
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			q := (y/2)*2 + x/2
			raster.Set(0, y, x, float64(q+1))
		}
	}
	mask := createTestMask(height, width, func(x, y int) bool { return x >= 2 })

	tiler, err := NewTiler(height, width, models.TileSpec{Height: 2, Width: 2}, 4)
	require.NoError(t, err)

	tiles, err := tiler.Partition(raster, mask)
	require.NoError(t, err)
	require.Len(t, tiles, 4)

	for i, tile := range tiles {
		assert.Equal(t, i, tile.Index)
		assert.Equal(t, i/2, tile.Row)
		assert.Equal(t, i%2, tile.Col)
		require.Equal(t, 2, tile.Image.Height)
		require.Equal(t, 2, tile.Image.Width)
		for _, v := range tile.Image.Data {
			assert.Equal(t, float64(i+1), v, "tile %d", i)
		}
		expectedActive := 0
		if tile.Col == 1 {
			expectedActive = 4
		}
		assert.Equal(t, expectedActive, tile.Mask.Sum(), "tile %d", i)
	}
}

func TestPartitionTilesDoNotAlias(t *testing.T) {
	raster := createTestRaster(2, 4, 4)
	original := raster.Clone()
	mask := models.NewMask(4, 4)

	tiler, err := NewTiler(4, 4, models.TileSpec{Height: 2, Width: 2}, 1)
	require.NoError(t, err)
	tiles, err := tiler.Partition(raster, mask)
	require.NoError(t, err)

	for _, tile := range tiles {
		for i := range tile.Image.Data {
			tile.Image.Data[i] = -1
		}
		tile.Mask.Set(0, 0, true)
	}
	assert.True(t, raster.Equal(original))
	assert.Equal(t, 0, mask.Sum())
}

// TestRoundTrip checks reassemble(partition(raster)) == raster over random geometries
func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for n := 0; n < 25; n++ {
		spec := models.TileSpec{Height: 1 + rng.IntN(8), Width: 1 + rng.IntN(8)}
		rows, cols := 1+rng.IntN(5), 1+rng.IntN(5)
		channels := 1 + rng.IntN(4)
		height, width := rows*spec.Height, cols*spec.Width

		raster := models.NewRaster(channels, height, width)
		for i := range raster.Data {
			raster.Data[i] = rng.Float64()
		}
		mask := createTestMask(height, width, func(x, y int) bool { return rng.IntN(2) == 0 })

		tiler, err := NewTiler(height, width, spec, 1+rng.IntN(6))
		require.NoError(t, err)

		tiles, err := tiler.Partition(raster, mask)
		require.NoError(t, err)
		require.Len(t, tiles, rows*cols)

		images := make([]*models.Raster, len(tiles))
		masks := make([]*models.Mask, len(tiles))
		for i, tile := range tiles {
			images[i] = tile.Image
			masks[i] = tile.Mask
		}

		out, err := tiler.Reassemble(images)
		require.NoError(t, err)
		assert.True(t, raster.Equal(out), "raster round trip failed for %+v %dx%d", spec, cols, rows)

		outMask, err := tiler.ReassembleMask(masks)
		require.NoError(t, err)
		assert.True(t, mask.Equal(outMask), "mask round trip failed for %+v %dx%d", spec, cols, rows)

		viaLayout, err := Reassemble(images, tiler.Layout())
		require.NoError(t, err)
		assert.True(t, raster.Equal(viaLayout))
	}
}

func TestPartitionImageMatchesPartition(t *testing.T) {
	raster := createTestRaster(3, 6, 9)
	mask := createTestMask(6, 9, func(x, y int) bool { return x == y })

	tiler, err := NewTiler(6, 9, models.TileSpec{Height: 3, Width: 3}, 3)
	require.NoError(t, err)

	tiles, err := tiler.Partition(raster, mask)
	require.NoError(t, err)
	images, err := tiler.PartitionImage(raster)
	require.NoError(t, err)
	masks, err := tiler.PartitionMask(mask)
	require.NoError(t, err)

	for i := range tiles {
		assert.True(t, tiles[i].Image.Equal(images[i]))
		assert.True(t, tiles[i].Mask.Equal(masks[i]))
	}
}

func TestReassembleShapeMismatch(t *testing.T) {
	tiler, err := NewTiler(4, 4, models.TileSpec{Height: 2, Width: 2}, 1)
	require.NoError(t, err)

	good := func() []*models.Raster {
		tiles := make([]*models.Raster, 4)
		for i := range tiles {
			tiles[i] = models.NewRaster(3, 2, 2)
		}
		return tiles
	}

	_, err = tiler.Reassemble(good()[:3])
	assert.ErrorIs(t, err, ErrShapeMismatch)

	wrongSize := good()
	wrongSize[2] = models.NewRaster(3, 2, 3)
	_, err = tiler.Reassemble(wrongSize)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	wrongChannels := good()
	wrongChannels[1] = models.NewRaster(1, 2, 2)
	_, err = tiler.Reassemble(wrongChannels)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	withNil := good()
	withNil[0] = nil
	_, err = tiler.Reassemble(withNil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = tiler.ReassembleMask([]*models.Mask{models.NewMask(2, 2)})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Reassemble(good(), models.Layout{})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestForEachTile(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		tiler, err := NewTiler(8, 8, models.TileSpec{Height: 2, Width: 2}, workers)
		require.NoError(t, err)

		visits := make([]int32, tiler.Layout().Count())
		require.NoError(t, tiler.forEachTile(func(i int) error {
			atomic.AddInt32(&visits[i], 1)
			return nil
		}))
		for i, n := range visits {
			assert.Equal(t, int32(1), n, "workers=%d index %d", workers, i)
		}

		errStop := errors.New("stop")
		err = tiler.forEachTile(func(i int) error {
			if i == 5 {
				return errStop
			}
			return nil
		})
		assert.ErrorIs(t, err, errStop, "workers=%d", workers)
	}
}

func BenchmarkPartition(b *testing.B) {
	raster := createTestRaster(3, 2048, 2048)
	mask := models.NewMask(2048, 2048)
	tiler, err := NewTiler(2048, 2048, models.TileSpec{Height: 256, Width: 256}, 0)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tiler.Partition(raster, mask); err != nil {
			b.Fatal(err)
		}
	}
}
