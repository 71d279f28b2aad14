package utils

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ToGray converts an image to 8-bit grayscale. The fast path reuses the
// red channel of imaging's grayscale output, which already holds the
// luminance value for every pixel.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	src := imaging.Grayscale(img)
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*4]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x := range b.Dx() {
			dstRow[x] = srcRow[x*4]
		}
	}
	return dst
}

// GrayStats returns the mean and variance of a grayscale image's pixels.
func GrayStats(g *image.Gray) (mean, variance float64) {
	b := g.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride : (y-b.Min.Y)*g.Stride+b.Dx()]
		for _, v := range row {
			f := float64(v)
			sum += f
			sumSq += f * f
		}
	}
	mean = sum / float64(n)
	variance = sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}

// BrightRatio returns the fraction of pixels whose luminance exceeds the
// given threshold.
func BrightRatio(g *image.Gray, threshold uint8) float64 {
	b := g.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	bright := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride : (y-b.Min.Y)*g.Stride+b.Dx()]
		for _, v := range row {
			if v > threshold {
				bright++
			}
		}
	}
	return float64(bright) / float64(n)
}

// Luminance returns the 8-bit luminance of a color.
func Luminance(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}
