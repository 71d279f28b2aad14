package tiler

import (
	"image"

	"github.com/planscan-tech/planscan/internal/utils"
)

// nearWhite is the luminance above which a pixel counts as background.
const nearWhite = 240

// isBlankTile reports whether a tile is mostly empty: either the
// near-white pixel ratio exceeds whiteThreshold or the luminance variance
// falls below varianceThreshold.
func isBlankTile(tile image.Image, whiteThreshold, varianceThreshold float64) bool {
	gray := utils.ToGray(tile)
	if utils.BrightRatio(gray, nearWhite) > whiteThreshold {
		return true
	}
	_, variance := utils.GrayStats(gray)
	return variance < varianceThreshold
}

// isEdgeTile reports whether a tile lies within margin pixels of any page
// boundary. Borders and title blocks rarely contain device symbols.
func isEdgeTile(x, y, size, imgWidth, imgHeight, margin int) bool {
	return x < margin ||
		y < margin ||
		x+size > imgWidth-margin ||
		y+size > imgHeight-margin
}
