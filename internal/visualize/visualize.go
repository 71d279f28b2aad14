// Package visualize renders resolved detections onto page images for
// preview and export.
package visualize

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/planscan-tech/planscan/internal/pipeline"
	"github.com/planscan-tech/planscan/internal/utils"
)

// Options controls how devices are drawn onto pages.
type Options struct {
	LineWidth  int
	DrawLabels bool
}

// DefaultOptions returns overlay drawing defaults.
func DefaultOptions() Options {
	return Options{LineWidth: 3, DrawLabels: true}
}

// classPalette cycles per class id so neighboring classes get distinct
// box colors.
var classPalette = []color.RGBA{
	{220, 38, 38, 255},  // red
	{37, 99, 235, 255},  // blue
	{22, 163, 74, 255},  // green
	{217, 119, 6, 255},  // amber
	{147, 51, 234, 255}, // purple
	{13, 148, 136, 255}, // teal
}

// classColors assigns stable colors to class names in first-seen order.
func classColors(devices []pipeline.Device) map[string]color.RGBA {
	colors := make(map[string]color.RGBA)
	for _, d := range devices {
		if _, ok := colors[d.Type]; !ok {
			colors[d.Type] = classPalette[len(colors)%len(classPalette)]
		}
	}
	return colors
}

// DrawDevices returns a copy of the page image with one labeled box per
// resolved device.
func DrawDevices(img image.Image, devices []pipeline.Device, opts Options) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	lineWidth := opts.LineWidth
	if lineWidth < 1 {
		lineWidth = 1
	}

	colors := classColors(devices)
	for _, d := range devices {
		col := colors[d.Type]
		box := utils.BoxFromCenter(float64(d.X), float64(d.Y), float64(d.Width), float64(d.Height))
		rect := box.ToRect(b)
		utils.DrawRect(dst, rect, col, lineWidth)
		if opts.DrawLabels {
			label := fmt.Sprintf("%s %.0f%%", d.Type, d.Confidence*100)
			y := rect.Min.Y - 4
			if y < b.Min.Y+13 {
				y = rect.Min.Y + 13
			}
			utils.DrawLabel(dst, label, rect.Min.X, y, col)
		}
	}
	return dst
}
