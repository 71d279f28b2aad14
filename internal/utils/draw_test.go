package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrawRect(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 50, 50))
	red := color.RGBA{255, 0, 0, 255}

	DrawRect(dst, image.Rect(10, 10, 40, 40), red, 2)

	assert.Equal(t, red, dst.RGBAAt(10, 20), "left edge")
	assert.Equal(t, red, dst.RGBAAt(11, 20), "thickness extends inward")
	assert.Equal(t, red, dst.RGBAAt(39, 20), "right edge")
	assert.Equal(t, red, dst.RGBAAt(20, 10), "top edge")
	assert.Equal(t, red, dst.RGBAAt(20, 39), "bottom edge")

	zero := color.RGBA{}
	assert.Equal(t, zero, dst.RGBAAt(20, 20), "interior untouched")
	assert.Equal(t, zero, dst.RGBAAt(5, 5), "exterior untouched")
}

func TestDrawRectClipsToBounds(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	red := color.RGBA{255, 0, 0, 255}

	// Rect partially outside the image must not panic and must clip.
	DrawRect(dst, image.Rect(-10, -10, 10, 10), red, 3)
	assert.Equal(t, red, dst.RGBAAt(0, 5))

	// Fully outside draws nothing.
	before := append([]uint8(nil), dst.Pix...)
	DrawRect(dst, image.Rect(100, 100, 120, 120), red, 1)
	assert.Equal(t, before, dst.Pix)
}

func TestDrawLabel(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 100, 30))
	before := append([]uint8(nil), dst.Pix...)

	DrawLabel(dst, "smoke_detector 90%", 2, 15, color.RGBA{0, 0, 255, 255})
	assert.NotEqual(t, before, dst.Pix, "label glyphs change pixels")
}
