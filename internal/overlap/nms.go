// Package overlap collapses duplicate detections produced by overlapping
// tiles. The same physical symbol can be detected independently in two or
// more neighboring tiles; this step keeps one representative per cluster.
package overlap

import (
	"sort"

	"github.com/planscan-tech/planscan/internal/detector"
	"github.com/planscan-tech/planscan/internal/utils"
)

// DefaultIoUThreshold is the overlap above which two same-class
// detections are considered duplicates.
const DefaultIoUThreshold = 0.5

// Resolve performs greedy class-aware non-max suppression over
// page-global detections. Detections are ordered by descending
// confidence (stable, so equal-confidence ties keep first-seen order);
// each survivor suppresses later same-class detections whose IoU exceeds
// the threshold. The result is a selected subset of the input, in
// confidence-descending order — never a synthesized merge.
func Resolve(dets []detector.PageDetection, iouThreshold float64) []detector.PageDetection {
	if len(dets) <= 1 {
		return dets
	}

	sorted := make([]detector.PageDetection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	boxes := make([]utils.Box, len(sorted))
	for i, d := range sorted {
		boxes[i] = d.Box()
	}

	suppressed := make([]bool, len(sorted))
	kept := make([]detector.PageDetection, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] {
				continue
			}
			// A smoke detector and a pull station sharing coordinates are
			// not duplicates; only same-class pairs compete.
			if sorted[i].ClassID != sorted[j].ClassID {
				continue
			}
			if utils.IoU(boxes[i], boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
