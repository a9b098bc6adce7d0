package models

import (
	"image"

	"gonum.org/v1/gonum/floats"
)

// Raster represents a multi-channel 2D pixel grid
type Raster struct {
	// Data holds the samples channel-major, each channel in row-major order:
	// Data[c*Height*Width + y*Width + x]
	Data []float64

	// Channels is the number of sample planes
	Channels int

	// Height is the height of the raster in pixels
	Height int

	// Width is the width of the raster in pixels
	Width int
}

// NewRaster allocates a zeroed raster with the given dimensions
func NewRaster(channels, height, width int) *Raster {
	return &Raster{
		Data:     make([]float64, channels*height*width),
		Channels: channels,
		Height:   height,
		Width:    width,
	}
}

func (r *Raster) index(c, y, x int) int {
	return c*r.Height*r.Width + y*r.Width + x
}

// At returns the sample of channel c at (x, y)
func (r *Raster) At(c, y, x int) float64 {
	return r.Data[r.index(c, y, x)]
}

// Set writes the sample of channel c at (x, y)
func (r *Raster) Set(c, y, x int, v float64) {
	r.Data[r.index(c, y, x)] = v
}

// Plane returns the backing samples of channel c. The slice aliases r.Data.
func (r *Raster) Plane(c int) []float64 {
	size := r.Height * r.Width
	return r.Data[c*size : (c+1)*size]
}

// Clone returns an independent copy of the raster
func (r *Raster) Clone() *Raster {
	out := &Raster{
		Data:     make([]float64, len(r.Data)),
		Channels: r.Channels,
		Height:   r.Height,
		Width:    r.Width,
	}
	copy(out.Data, r.Data)
	return out
}

// SameShape reports whether both rasters have identical dimensions
func (r *Raster) SameShape(o *Raster) bool {
	return r.Channels == o.Channels && r.Height == o.Height && r.Width == o.Width
}

// Equal reports whether both rasters have the same shape and identical samples
func (r *Raster) Equal(o *Raster) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.SameShape(o) && floats.Equal(r.Data, o.Data)
}

// Mask represents a single-channel boolean grid paired with a Raster.
// A pixel is "active" when its value is true.
type Mask struct {
	// Data holds one value per pixel in row-major order
	Data []bool

	// Height is the height of the mask in pixels
	Height int

	// Width is the width of the mask in pixels
	Width int
}

// NewMask allocates an all-inactive mask
func NewMask(height, width int) *Mask {
	return &Mask{
		Data:   make([]bool, height*width),
		Height: height,
		Width:  width,
	}
}

// MaskFromValues builds a mask from indicator values; nonzero is active
func MaskFromValues(height, width int, values []float64) *Mask {
	m := NewMask(height, width)
	for i, v := range values {
		if i >= len(m.Data) {
			break
		}
		m.Data[i] = v != 0
	}
	return m
}

// At reports whether (x, y) is active
func (m *Mask) At(y, x int) bool {
	return m.Data[y*m.Width+x]
}

// Set marks (x, y) active or inactive
func (m *Mask) Set(y, x int, v bool) {
	m.Data[y*m.Width+x] = v
}

// Clone returns an independent copy of the mask
func (m *Mask) Clone() *Mask {
	out := &Mask{
		Data:   make([]bool, len(m.Data)),
		Height: m.Height,
		Width:  m.Width,
	}
	copy(out.Data, m.Data)
	return out
}

// Sum returns the number of active pixels
func (m *Mask) Sum() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Area returns Height*Width
func (m *Mask) Area() int {
	return m.Height * m.Width
}

// Invert returns the logical complement of the mask
func (m *Mask) Invert() *Mask {
	out := NewMask(m.Height, m.Width)
	for i, v := range m.Data {
		out.Data[i] = !v
	}
	return out
}

// And returns the pixel-wise conjunction of two masks of identical size.
// It returns nil if the sizes differ.
func (m *Mask) And(o *Mask) *Mask {
	if m.Height != o.Height || m.Width != o.Width {
		return nil
	}
	out := NewMask(m.Height, m.Width)
	for i := range m.Data {
		out.Data[i] = m.Data[i] && o.Data[i]
	}
	return out
}

// SubsetOf reports whether every active pixel of m is also active in o
func (m *Mask) SubsetOf(o *Mask) bool {
	if m.Height != o.Height || m.Width != o.Width {
		return false
	}
	for i, v := range m.Data {
		if v && !o.Data[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both masks have the same size and values
func (m *Mask) Equal(o *Mask) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Height != o.Height || m.Width != o.Width {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// ActivePixels lists the coordinates of every active pixel in row-major order
func (m *Mask) ActivePixels() []image.Point {
	points := make([]image.Point, 0, m.Sum())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Data[y*m.Width+x] {
				points = append(points, image.Pt(x, y))
			}
		}
	}
	return points
}

// InactiveFraction returns the share of pixels that are inactive
func (m *Mask) InactiveFraction() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	return float64(len(m.Data)-m.Sum()) / float64(len(m.Data))
}

// Region is an axis-aligned box [X1, X2) x [Y1, Y2) inside a raster.
// It keeps the half extents it was generated from so that a region of the
// same size can be sampled elsewhere.
type Region struct {
	X1, Y1, X2, Y2 int

	HalfWidth  int
	HalfHeight int
}

// Width of the region in pixels
func (r Region) Width() int { return r.X2 - r.X1 }

// Height of the region in pixels
func (r Region) Height() int { return r.Y2 - r.Y1 }

// Rect converts the region to an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Contains reports whether (x, y) lies inside the region
func (r Region) Contains(x, y int) bool {
	return x >= r.X1 && x < r.X2 && y >= r.Y1 && y < r.Y2
}

// TileSpec is the fixed size of every tile
type TileSpec struct {
	Height int `yaml:"height"`
	Width  int `yaml:"width"`
}

// Area returns the pixel count of one tile
func (s TileSpec) Area() int {
	return s.Height * s.Width
}

// Layout is the tile grid derived from a raster size and a TileSpec.
// Tiles are enumerated in row-major order.
type Layout struct {
	Rows int
	Cols int
	Spec TileSpec
}

// Count returns Rows*Cols
func (l Layout) Count() int {
	return l.Rows * l.Cols
}

// Height of the full raster covered by the layout
func (l Layout) Height() int { return l.Rows * l.Spec.Height }

// Width of the full raster covered by the layout
func (l Layout) Width() int { return l.Cols * l.Spec.Width }

// Position returns the grid row and column of tile index i
func (l Layout) Position(i int) (row, col int) {
	return i / l.Cols, i % l.Cols
}

// Offset returns the pixel origin of tile index i
func (l Layout) Offset(i int) image.Point {
	row, col := l.Position(i)
	return image.Pt(col*l.Spec.Width, row*l.Spec.Height)
}

// Tile is one cell of a partitioned raster and its paired mask
type Tile struct {
	// Index is the row-major position of the tile in its layout
	Index int

	// Row and Col locate the tile in the grid
	Row, Col int

	// Image is an independent copy of the raster samples under the tile
	Image *Raster

	// Mask is an independent copy of the region-of-interest mask under the tile
	Mask *Mask
}

// SynthesizedSample is the output of anomaly injection for one tile
type SynthesizedSample struct {
	// Index is the position of the tile in the input batch
	Index int

	// Tile is the (possibly modified) image tile
	Tile *Raster

	// AnomalyMask marks pixels changed by injection inside the region of interest
	AnomalyMask *Mask

	// Label is true iff AnomalyMask has at least one active pixel
	Label bool

	// Injected reports whether a donor patch was copied into the tile
	Injected bool

	// Destination and Source are the regions used, nil on pass-through
	Destination *Region
	Source      *Region
}
