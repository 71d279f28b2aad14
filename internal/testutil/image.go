// Package testutil provides synthetic drawing images and stub detectors
// for tests.
package testutil

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"github.com/planscan-tech/planscan/internal/detector"
)

// BlankSheet returns a uniformly white image, like an empty drawing
// sheet.
func BlankSheet(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	return img
}

// Mark is a filled square drawn onto a sheet, standing in for a device
// symbol.
type Mark struct {
	X, Y, Size int
	Color      color.Color
}

// SheetWithMarks returns a white sheet with filled squares at the given
// positions. X and Y are the mark centers.
func SheetWithMarks(width, height int, marks ...Mark) *image.RGBA {
	img := BlankSheet(width, height)
	for _, m := range marks {
		c := m.Color
		if c == nil {
			c = color.Black
		}
		half := m.Size / 2
		rect := image.Rect(m.X-half, m.Y-half, m.X+half, m.Y+half).Intersect(img.Bounds())
		draw.Draw(img, rect, &image.Uniform{c}, image.Point{}, draw.Src)
	}
	return img
}

// NoisySheet returns a sheet with a deterministic line pattern, useful
// when a test needs a tile that is clearly not blank.
func NoisySheet(width, height int) *image.RGBA {
	img := BlankSheet(width, height)
	for y := 0; y < height; y += 8 {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return img
}

// DarkRatio reports the fraction of non-white pixels in an image region,
// used to locate synthetic marks in assertions.
func DarkRatio(img image.Image, rect image.Rectangle) float64 {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return 0
	}
	var dark, total int
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
				dark++
			}
			total++
		}
	}
	return float64(dark) / float64(total)
}

// MarkDetector returns a detector.Func that reports one detection for
// every tile whose dark-pixel ratio exceeds minDark. The detection is
// centered on the dark-pixel centroid, so overlapping tiles covering the
// same mark remap to the same page position and the overlap resolver
// collapses them to one.
func MarkDetector(minDark, boxSize, confidence float64, className string) detector.Func {
	return func(ctx context.Context, img image.Image, conf float64) ([]detector.Detection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := img.Bounds()
		if DarkRatio(img, b) <= minDark {
			return nil, nil
		}

		var sumX, sumY, count float64
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				if r>>8 < 240 || g>>8 < 240 || bl>>8 < 240 {
					sumX += float64(x)
					sumY += float64(y)
					count++
				}
			}
		}
		if count == 0 {
			return nil, nil
		}

		det := detector.Detection{
			CenterX:    sumX/count - float64(b.Min.X),
			CenterY:    sumY/count - float64(b.Min.Y),
			Width:      boxSize,
			Height:     boxSize,
			Confidence: confidence,
			ClassName:  className,
		}
		return []detector.Detection{det}, nil
	}
}

// FixedDetector returns a detector.Func that always reports the given
// detections, regardless of input.
func FixedDetector(dets ...detector.Detection) detector.Func {
	return func(ctx context.Context, img image.Image, conf float64) ([]detector.Detection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := make([]detector.Detection, len(dets))
		copy(out, dets)
		return out, nil
	}
}
