package detector

import (
	"context"
	"fmt"
	"image"

	"github.com/planscan-tech/planscan/internal/utils"
)

// Detection is a single detected symbol in tile-local pixel coordinates.
// CenterX/CenterY are relative to the tile's own top-left origin.
type Detection struct {
	CenterX    float64 `json:"x"`
	CenterY    float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	ClassName  string  `json:"class"`
	ClassID    int     `json:"class_id"`
}

// Box returns the detection's bounding box.
func (d Detection) Box() utils.Box {
	return utils.BoxFromCenter(d.CenterX, d.CenterY, d.Width, d.Height)
}

// Validate performs sanity checks on a detection returned by a model
// backend, guarding against malformed output.
func (d Detection) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("detection has non-positive size %gx%g", d.Width, d.Height)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("detection confidence %g out of range", d.Confidence)
	}
	return nil
}

// PageDetection is a detection translated into page-global coordinates.
// SourceTileID records the tile the detection came from, for traceability
// only.
type PageDetection struct {
	Detection
	SourceTileID int `json:"tile_id"`
}

// Detector is the capability consumed by the tile orchestrator: run the
// model on one tile image and return tile-local detections at or above
// the confidence threshold.
type Detector interface {
	Detect(ctx context.Context, img image.Image, confidence float64) ([]Detection, error)
}
