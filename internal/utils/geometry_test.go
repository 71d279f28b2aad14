package utils

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBoxOrdersCoordinates(t *testing.T) {
	b := NewBox(10, 20, 0, 5)
	assert.Equal(t, 0.0, b.MinX)
	assert.Equal(t, 5.0, b.MinY)
	assert.Equal(t, 10.0, b.MaxX)
	assert.Equal(t, 20.0, b.MaxY)
}

func TestBoxFromCenter(t *testing.T) {
	b := BoxFromCenter(100, 50, 20, 10)
	assert.Equal(t, 90.0, b.MinX)
	assert.Equal(t, 45.0, b.MinY)
	assert.Equal(t, 110.0, b.MaxX)
	assert.Equal(t, 55.0, b.MaxY)
	assert.Equal(t, 20.0, b.Width())
	assert.Equal(t, 10.0, b.Height())
	assert.Equal(t, 200.0, b.Area())
}

func TestIoU(t *testing.T) {
	a := NewBox(0, 0, 10, 10)

	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.Equal(t, 0.0, IoU(a, NewBox(20, 20, 30, 30)))
	// Touching edges do not intersect.
	assert.Equal(t, 0.0, IoU(a, NewBox(10, 0, 20, 10)))

	// Half overlap: inter 50, union 150.
	got := IoU(a, NewBox(5, 0, 15, 10))
	assert.InDelta(t, 50.0/150.0, got, 1e-9)
}

func TestIoUDegenerateBoxes(t *testing.T) {
	zero := NewBox(5, 5, 5, 5)
	assert.Equal(t, 0.0, IoU(zero, zero))
	assert.Equal(t, 0.0, IoU(zero, NewBox(0, 0, 10, 10)))
}

func TestToRectClampsToBounds(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)

	r := BoxFromCenter(0, 0, 40, 40).ToRect(bounds)
	assert.Equal(t, image.Rect(0, 0, 20, 20), r)

	r = BoxFromCenter(100, 100, 40, 40).ToRect(bounds)
	assert.Equal(t, image.Rect(80, 80, 100, 100), r)

	// Entirely outside collapses to an empty rect on the boundary.
	r = BoxFromCenter(-50, -50, 10, 10).ToRect(bounds)
	assert.True(t, r.Empty())
}
