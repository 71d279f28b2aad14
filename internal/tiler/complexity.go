package tiler

import (
	"image"

	"github.com/planscan-tech/planscan/internal/utils"
)

// Complexity scores a tile by its total local intensity gradient: the sum
// of absolute horizontal and vertical adjacent-pixel differences,
// normalized by pixel count. Dense line-work and symbols score high,
// empty regions score near zero.
func Complexity(tile image.Image) float64 {
	gray := utils.ToGray(tile)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	var edges int64
	for y := range h {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x := range w - 1 {
			edges += absDiff(row[x], row[x+1])
		}
	}
	for y := range h - 1 {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		next := gray.Pix[(y+1)*gray.Stride : (y+1)*gray.Stride+w]
		for x := range w {
			edges += absDiff(row[x], next[x])
		}
	}

	return float64(edges) / float64(w*h)
}

func absDiff(a, b uint8) int64 {
	if a > b {
		return int64(a - b)
	}
	return int64(b - a)
}
