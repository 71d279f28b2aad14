// Package pipeline coordinates tiled symbol detection: it dispatches page
// tiles to the detector capability, consults the result cache, remaps
// tile-local detections into page coordinates, and resolves cross-tile
// duplicates.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/planscan-tech/planscan/internal/detector"
	"github.com/planscan-tech/planscan/internal/overlap"
	"github.com/planscan-tech/planscan/internal/tilecache"
	"github.com/planscan-tech/planscan/internal/tiler"
)

// Options controls a single ProcessTiles run.
type Options struct {
	Confidence float64 // Detector confidence threshold in [0, 1]
	Parallel   bool    // Dispatch tiles across a worker pool
	MaxWorkers int     // Pool size for parallel mode
	UseCache   bool    // Consult/populate the result cache
	// EarlyStopCount halts dispatch once this many detections have
	// accumulated. Zero disables early stopping.
	EarlyStopCount int
	// BoxScale multiplies detection box dimensions during remapping.
	// Kept at 1.0; present so both dispatch modes share one remap path.
	BoxScale float64
}

// DefaultOptions returns orchestration defaults.
func DefaultOptions() Options {
	return Options{
		Confidence: 0.40,
		Parallel:   true,
		MaxWorkers: 4,
		UseCache:   true,
		BoxScale:   1.0,
	}
}

// Validate checks the options for configuration errors.
func (o Options) Validate() error {
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence threshold must be in [0, 1], got %g", o.Confidence)
	}
	if o.Parallel && o.MaxWorkers <= 0 {
		return fmt.Errorf("parallel mode requires a positive worker count, got %d", o.MaxWorkers)
	}
	if o.EarlyStopCount < 0 {
		return fmt.Errorf("early stop count must be non-negative, got %d", o.EarlyStopCount)
	}
	if o.BoxScale <= 0 {
		return fmt.Errorf("box scale must be positive, got %g", o.BoxScale)
	}
	return nil
}

// RunStats aggregates timing and throughput for one ProcessTiles run.
type RunStats struct {
	TilesProcessed  int           `json:"tiles_processed"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	CacheHits       uint64        `json:"cache_hits"`
	CacheMisses     uint64        `json:"cache_misses"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	EarlyStopped    bool          `json:"early_stopped"`
	DetectionsFound int           `json:"detections_found"`
}

// Orchestrator owns one detection capability and an optional shared
// result cache. The cache is constructed and cleared by the caller; a nil
// cache degrades every run to UseCache=false behavior.
type Orchestrator struct {
	detector     detector.Detector
	cache        *tilecache.Cache
	iouThreshold float64
}

// NewOrchestrator creates an orchestrator around the given detector
// capability. cache may be nil to disable caching entirely.
func NewOrchestrator(det detector.Detector, cache *tilecache.Cache) (*Orchestrator, error) {
	if det == nil {
		return nil, errors.New("detector capability is required")
	}
	return &Orchestrator{
		detector:     det,
		cache:        cache,
		iouThreshold: overlap.DefaultIoUThreshold,
	}, nil
}

// SetIoUThreshold overrides the duplicate-resolution IoU threshold.
func (o *Orchestrator) SetIoUThreshold(t float64) error {
	if t <= 0 || t >= 1 {
		return fmt.Errorf("IoU threshold must be in (0, 1), got %g", t)
	}
	o.iouThreshold = t
	return nil
}

// Cache returns the orchestrator's result cache (may be nil).
func (o *Orchestrator) Cache() *tilecache.Cache { return o.cache }

// remap translates a tile-local detection into page-global coordinates by
// adding the owning tile's offset to its center. Width and height are
// already page pixel units, independent of tile position; BoxScale is
// applied as a no-op-by-default hook.
func remap(det detector.Detection, t tiler.Tile, boxScale float64) detector.PageDetection {
	det.CenterX += float64(t.X)
	det.CenterY += float64(t.Y)
	if boxScale != 1.0 {
		det.Width *= boxScale
		det.Height *= boxScale
	}
	return detector.PageDetection{Detection: det, SourceTileID: t.ID}
}
