package models

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterIndexing(t *testing.T) {
	r := NewRaster(2, 3, 4)
	require.Len(t, r.Data, 24)

	r.Set(1, 2, 3, 0.5)
	assert.Equal(t, 0.5, r.At(1, 2, 3))
	assert.Equal(t, 0.5, r.Data[1*12+2*4+3])
	assert.Equal(t, 0.5, r.Plane(1)[11])
}

func TestRasterCloneIsIndependent(t *testing.T) {
	r := NewRaster(1, 2, 2)
	r.Set(0, 0, 0, 1)

	c := r.Clone()
	require.True(t, r.Equal(c))

	c.Set(0, 0, 0, 2)
	assert.Equal(t, 1.0, r.At(0, 0, 0))
	assert.False(t, r.Equal(c))
}

func TestRasterEqualShape(t *testing.T) {
	assert.False(t, NewRaster(1, 2, 3).Equal(NewRaster(1, 3, 2)))
	assert.True(t, NewRaster(3, 2, 2).Equal(NewRaster(3, 2, 2)))
}

func TestMaskOperations(t *testing.T) {
	m := MaskFromValues(2, 3, []float64{0, 1, 0, 1, 1, 0})
	assert.Equal(t, 3, m.Sum())
	assert.Equal(t, 6, m.Area())
	assert.InDelta(t, 0.5, m.InactiveFraction(), 1e-12)

	inv := m.Invert()
	assert.Equal(t, 3, inv.Sum())
	assert.Equal(t, 0, m.And(inv).Sum())
	assert.True(t, m.And(m).Equal(m))

	assert.Equal(t, []image.Point{{1, 0}, {0, 1}, {1, 1}}, m.ActivePixels())
}

func TestMaskSubsetOf(t *testing.T) {
	full := MaskFromValues(2, 2, []float64{1, 1, 1, 0})
	part := MaskFromValues(2, 2, []float64{1, 0, 0, 0})
	other := MaskFromValues(2, 2, []float64{0, 0, 0, 1})

	assert.True(t, part.SubsetOf(full))
	assert.False(t, full.SubsetOf(part))
	assert.False(t, other.SubsetOf(full))
	assert.Nil(t, full.And(NewMask(1, 4)))
}

func TestLayoutOffsets(t *testing.T) {
	l := Layout{Rows: 2, Cols: 3, Spec: TileSpec{Height: 4, Width: 5}}
	assert.Equal(t, 6, l.Count())
	assert.Equal(t, 8, l.Height())
	assert.Equal(t, 15, l.Width())

	row, col := l.Position(4)
	assert.Equal(t, 1, row)
	assert.Equal(t, 1, col)
	assert.Equal(t, image.Pt(5, 4), l.Offset(4))
	assert.Equal(t, image.Pt(10, 0), l.Offset(2))
}

func TestRegionGeometry(t *testing.T) {
	r := Region{X1: 1, Y1: 2, X2: 5, Y2: 4, HalfWidth: 2, HalfHeight: 1}
	assert.Equal(t, 4, r.Width())
	assert.Equal(t, 2, r.Height())
	assert.Equal(t, image.Rect(1, 2, 5, 4), r.Rect())
	assert.True(t, r.Contains(1, 2))
	assert.False(t, r.Contains(5, 2))
	assert.False(t, r.Contains(1, 4))
}
