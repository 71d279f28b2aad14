package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/planscan-tech/planscan/internal/detector"
	"github.com/planscan-tech/planscan/internal/tiler"
)

// tileResult carries one tile's page-global detections back to the
// aggregator. Results arrive in completion order, not submission order.
// processed is false for tiles skipped by cancellation.
type tileResult struct {
	detections []detector.PageDetection
	processed  bool
}

// processParallel dispatches tiles across a bounded worker pool. Early
// stop is best-effort: once the accumulated detection count reaches the
// target the run context is cancelled, which stops further submission and
// prevents not-yet-started tiles from invoking the detector. Tiles
// already mid-inference finish and racing completions may still be
// incorporated.
func (o *Orchestrator) processParallel(parent context.Context, tiles []tiler.Tile, opts Options,
	counters *runCounters,
) ([]detector.PageDetection, RunStats) {
	var stats RunStats

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	workers := opts.MaxWorkers
	if workers > len(tiles) {
		workers = len(tiles)
	}

	// The jobs buffer is sized to the pool so the submitter stalls while
	// workers are busy and cancellation can stop submission early.
	jobs := make(chan tiler.Tile, workers)
	results := make(chan tileResult, len(tiles))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				// Submission-boundary cancellation check: a cancelled tile
				// reports an empty result rather than starting inference.
				if ctx.Err() != nil {
					results <- tileResult{}
					continue
				}
				dets := o.detectTile(ctx, t, opts, counters)
				out := make([]detector.PageDetection, 0, len(dets))
				for _, d := range dets {
					out = append(out, remap(d, t, opts.BoxScale))
				}
				results <- tileResult{detections: out, processed: true}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range tiles {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var detections []detector.PageDetection
	for r := range results {
		if r.processed {
			stats.TilesProcessed++
		}
		detections = append(detections, r.detections...)

		if opts.EarlyStopCount > 0 && !stats.EarlyStopped && len(detections) >= opts.EarlyStopCount {
			slog.Info("early stop: target detection count reached",
				"found", len(detections), "target", opts.EarlyStopCount)
			stats.EarlyStopped = true
			cancel()
		}
	}

	return detections, stats
}
