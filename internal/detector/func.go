package detector

import (
	"context"
	"image"
)

// Func adapts a plain function to the Detector interface. Used by tests
// and anywhere a lightweight stub detector is needed.
type Func func(ctx context.Context, img image.Image, confidence float64) ([]Detection, error)

// Detect implements Detector.
func (f Func) Detect(ctx context.Context, img image.Image, confidence float64) ([]Detection, error) {
	return f(ctx, img, confidence)
}
