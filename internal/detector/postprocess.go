package detector

import (
	"fmt"
	"sort"

	"github.com/planscan-tech/planscan/internal/utils"
)

// decodeOutput converts a YOLO-style output tensor of shape
// [1, 4+numClasses, numAnchors] into detections in model-input pixel
// space. Each anchor carries cx, cy, w, h followed by per-class scores.
func decodeOutput(data []float32, shape []int64, classNames []string, confidence float64) ([]Detection, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	attrs := int(shape[1])
	anchors := int(shape[2])
	if attrs < 5 {
		return nil, fmt.Errorf("output has %d attributes, need at least 5", attrs)
	}
	if len(data) < attrs*anchors {
		return nil, fmt.Errorf("output data too short: %d < %d", len(data), attrs*anchors)
	}

	numClasses := attrs - 4
	var dets []Detection
	for a := range anchors {
		bestClass := -1
		bestScore := float32(0)
		for c := range numClasses {
			score := data[(4+c)*anchors+a]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || float64(bestScore) < confidence {
			continue
		}
		det := Detection{
			CenterX:    float64(data[0*anchors+a]),
			CenterY:    float64(data[1*anchors+a]),
			Width:      float64(data[2*anchors+a]),
			Height:     float64(data[3*anchors+a]),
			Confidence: float64(bestScore),
			ClassID:    bestClass,
			ClassName:  className(classNames, bestClass),
		}
		if det.Validate() != nil {
			continue
		}
		dets = append(dets, det)
	}
	return dets, nil
}

func className(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// suppressRawDetections collapses overlapping raw anchors for the same
// object within one tile. Class-agnostic on purpose: duplicate anchors
// for the same object can disagree on class, and the higher-confidence
// anchor should win.
func suppressRawDetections(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) <= 1 {
		return dets
	}

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	suppressed := make([]bool, len(dets))
	kept := make([]Detection, 0, len(dets))
	for i := range dets {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if suppressed[j] {
				continue
			}
			if utils.IoU(dets[i].Box(), dets[j].Box()) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
