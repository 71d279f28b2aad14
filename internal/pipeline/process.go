package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/planscan-tech/planscan/internal/detector"
	"github.com/planscan-tech/planscan/internal/tilecache"
	"github.com/planscan-tech/planscan/internal/tiler"
)

// runCounters tracks per-run cache effectiveness. The cache's own
// counters are monotonic across runs; stats reported for one page must
// cover that page only.
type runCounters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

// ProcessTiles runs detection over the supplied tiles and returns
// page-global detections with run statistics. Sequential mode preserves
// the supplied tile order in the output; parallel mode aggregates in
// completion order. A per-tile detector failure is logged and contributes
// zero detections; it never aborts the run.
func (o *Orchestrator) ProcessTiles(ctx context.Context, tiles []tiler.Tile, opts Options) ([]detector.PageDetection, RunStats, error) {
	var stats RunStats
	if err := opts.Validate(); err != nil {
		return nil, stats, err
	}
	if len(tiles) == 0 {
		return nil, stats, nil
	}

	start := time.Now()
	var counters runCounters

	var detections []detector.PageDetection
	if opts.Parallel {
		detections, stats = o.processParallel(ctx, tiles, opts, &counters)
	} else {
		detections, stats = o.processSequential(ctx, tiles, opts, &counters)
	}

	stats.Elapsed = time.Since(start)
	stats.CacheHits = counters.hits.Load()
	stats.CacheMisses = counters.misses.Load()
	if total := stats.CacheHits + stats.CacheMisses; total > 0 {
		stats.CacheHitRate = float64(stats.CacheHits) / float64(total)
	}
	stats.DetectionsFound = len(detections)
	return detections, stats, nil
}

// processSequential handles tiles one at a time in the order supplied,
// respecting the tiler's prioritization if it was enabled.
func (o *Orchestrator) processSequential(ctx context.Context, tiles []tiler.Tile, opts Options,
	counters *runCounters,
) ([]detector.PageDetection, RunStats) {
	var stats RunStats
	var detections []detector.PageDetection

	for _, t := range tiles {
		if ctx.Err() != nil {
			break
		}
		dets := o.detectTile(ctx, t, opts, counters)
		stats.TilesProcessed++
		for _, d := range dets {
			detections = append(detections, remap(d, t, opts.BoxScale))
		}
		if opts.EarlyStopCount > 0 && len(detections) >= opts.EarlyStopCount {
			slog.Info("early stop: target detection count reached",
				"found", len(detections), "target", opts.EarlyStopCount)
			stats.EarlyStopped = true
			break
		}
	}
	return detections, stats
}

// detectTile resolves one tile's detections, consulting the cache first
// when enabled. Only validated, non-empty results are cached so a failed
// call can never poison the cache. Detector failures are downgraded to
// zero detections.
func (o *Orchestrator) detectTile(ctx context.Context, t tiler.Tile, opts Options,
	counters *runCounters,
) []detector.Detection {
	useCache := opts.UseCache && o.cache != nil

	var fingerprint string
	if useCache {
		fingerprint = tilecache.Fingerprint(t.Image)
		if cached, ok := o.cache.Get(fingerprint); ok {
			counters.hits.Add(1)
			return cached
		}
		counters.misses.Add(1)
	}

	dets, err := o.detector.Detect(ctx, t.Image, opts.Confidence)
	if err != nil {
		slog.Warn("tile detection failed", "tile_id", t.ID, "x", t.X, "y", t.Y, "error", err)
		return nil
	}
	for _, d := range dets {
		if err := d.Validate(); err != nil {
			slog.Warn("detector returned malformed detection", "tile_id", t.ID, "error", err)
			return nil
		}
	}

	if useCache && len(dets) > 0 {
		o.cache.Set(fingerprint, dets)
	}
	return dets
}
