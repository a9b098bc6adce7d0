// Package imageio converts between decoded images and the raster and mask
// types, and loads and stores them on disk.
package imageio

import (
	"image"
	"image/color"
	"math"

	"riverdebris/internal/models"
)

// RasterFromImage converts an image to a 3 channel RGB raster with samples in [0, 1]
func RasterFromImage(img image.Image) *models.Raster {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	raster := models.NewRaster(3, height, width)
	red, green, blue := raster.Plane(0), raster.Plane(1), raster.Plane(2)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*width + x
			// Convert 16-bit color to float64 (0-1 range)
			red[i] = float64(r) / 65535.0
			green[i] = float64(g) / 65535.0
			blue[i] = float64(b) / 65535.0
		}
	}
	return raster
}

// MaskFromImage builds a mask from the first channel of an image; nonzero is active
func MaskFromImage(img image.Image) *models.Mask {
	bounds := img.Bounds()
	mask := models.NewMask(bounds.Dy(), bounds.Dx())
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mask.Set(y, x, r > 0)
		}
	}
	return mask
}

func toUint16(v float64) uint16 {
	return uint16(math.Round(math.Max(0, math.Min(1, v)) * 65535.0))
}

// RasterToImage converts a raster back to an image. Single channel rasters
// become Gray16; otherwise the first three channels become RGB.
func RasterToImage(raster *models.Raster) image.Image {
	rect := image.Rect(0, 0, raster.Width, raster.Height)
	if raster.Channels < 3 {
		img := image.NewGray16(rect)
		plane := raster.Plane(0)
		for y := 0; y < raster.Height; y++ {
			for x := 0; x < raster.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: toUint16(plane[y*raster.Width+x])})
			}
		}
		return img
	}

	img := image.NewRGBA64(rect)
	red, green, blue := raster.Plane(0), raster.Plane(1), raster.Plane(2)
	for y := 0; y < raster.Height; y++ {
		for x := 0; x < raster.Width; x++ {
			i := y*raster.Width + x
			img.SetRGBA64(x, y, color.RGBA64{
				R: toUint16(red[i]),
				G: toUint16(green[i]),
				B: toUint16(blue[i]),
				A: 0xffff,
			})
		}
	}
	return img
}

// MaskToImage renders active pixels white and inactive pixels black
func MaskToImage(mask *models.Mask) image.Image {
	img := image.NewGray(image.Rect(0, 0, mask.Width, mask.Height))
	for i, v := range mask.Data {
		if v {
			img.Pix[i] = 0xff
		}
	}
	return img
}
