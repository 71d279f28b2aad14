package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/planscan-tech/planscan/internal/overlap"
	"github.com/planscan-tech/planscan/internal/tilecache"
	"github.com/planscan-tech/planscan/internal/tiler"
)

// PageSource supplies rasterized page images for a document. A zero-area
// or unreadable page is simply absent from the returned map; the caller
// reports it as a per-page failure.
type PageSource interface {
	PageImages(filename string, pages []int) (map[int]image.Image, error)
}

// AnalyzeOptions bundles per-document analysis settings.
type AnalyzeOptions struct {
	Tiling tiler.Options
	Run    Options
	// Pages restricts analysis to the given 1-indexed page numbers.
	// Empty means all pages.
	Pages []int
}

// DefaultAnalyzeOptions returns document analysis defaults.
func DefaultAnalyzeOptions() AnalyzeOptions {
	return AnalyzeOptions{
		Tiling: tiler.DefaultOptions(),
		Run:    DefaultOptions(),
	}
}

// AnalyzePDF rasterizes the selected pages of a document, runs tiled
// detection on each, and aggregates device counts. A page that fails to
// rasterize or tile is reported as a structured per-page failure; sibling
// pages are unaffected.
func (o *Orchestrator) AnalyzePDF(ctx context.Context, source PageSource, filename string,
	opts AnalyzeOptions, progress ProgressCallback,
) (*DocumentAnalysis, error) {
	if source == nil {
		return nil, fmt.Errorf("page source is required")
	}
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	if err := opts.Tiling.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tiling options: %w", err)
	}
	if err := opts.Run.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run options: %w", err)
	}

	start := time.Now()
	pageImages, err := source.PageImages(filename, opts.Pages)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize %s: %w", filename, err)
	}

	pageNumbers := collectPageNumbers(pageImages, opts.Pages)
	progress.OnStart(len(pageNumbers))

	doc := &DocumentAnalysis{
		Filename:      filename,
		TotalPages:    len(pageNumbers),
		DeviceSummary: make(map[string]int),
	}

	for i, pageNum := range pageNumbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := o.analyzePage(ctx, pageNum, pageImages[pageNum], opts)
		doc.Pages = append(doc.Pages, page)

		if len(page.Devices) > 0 {
			doc.PagesWithDevices++
		}
		doc.TotalDevices += len(page.Devices)
		for _, d := range page.Devices {
			doc.DeviceSummary[d.Type]++
		}
		progress.OnPage(pageNum, i+1, len(pageNumbers))
	}

	doc.Elapsed = time.Since(start)
	if o.cache != nil {
		doc.CacheStats = o.cache.Stats()
	}
	progress.OnComplete()

	slog.Info("document analysis finished",
		"filename", filename,
		"pages", doc.TotalPages,
		"devices", doc.TotalDevices,
		"elapsed", doc.Elapsed)
	return doc, nil
}

// analyzePage runs the full tile pipeline for one page. All failure modes
// collapse into a PageAnalysis with FailureReason set.
func (o *Orchestrator) analyzePage(ctx context.Context, pageNum int, img image.Image,
	opts AnalyzeOptions,
) PageAnalysis {
	page := PageAnalysis{PageNumber: pageNum, PageType: "other", Devices: []Device{}}

	if img == nil {
		page.FailureReason = "page could not be rasterized"
		return page
	}
	bounds := img.Bounds()
	page.Width = bounds.Dx()
	page.Height = bounds.Dy()

	tiles, tileStats, err := tiler.Generate(img, opts.Tiling)
	page.TileStats = tileStats
	if err != nil {
		page.FailureReason = fmt.Sprintf("tiling failed: %v", err)
		return page
	}
	if len(tiles) == 0 {
		page.FailureReason = "no candidate tiles (page blank or smaller than tile size)"
		return page
	}

	raw, runStats, err := o.ProcessTiles(ctx, tiles, opts.Run)
	page.RunStats = runStats
	if err != nil {
		page.FailureReason = fmt.Sprintf("detection failed: %v", err)
		return page
	}

	resolved := overlap.Resolve(raw, o.iouThreshold)
	page.Detections = resolved
	for _, det := range resolved {
		page.Devices = append(page.Devices, Device{
			Type:       det.ClassName,
			Confidence: det.Confidence,
			X:          int(math.Round(det.CenterX)),
			Y:          int(math.Round(det.CenterY)),
			Width:      int(math.Round(det.Width)),
			Height:     int(math.Round(det.Height)),
			PageNumber: pageNum,
		})
	}
	page.IsFireAlarmPage = len(page.Devices) > 0
	page.PageType = classifyPageType(page.Devices)

	slog.Debug("page analyzed",
		"page", pageNum,
		"tiles_kept", tileStats.Kept,
		"raw_detections", len(raw),
		"devices", len(page.Devices))
	return page
}

// collectPageNumbers returns the pages to report on, ordered ascending:
// every rasterized page plus any requested page that failed to rasterize
// (so its failure is visible in the results).
func collectPageNumbers(images map[int]image.Image, requested []int) []int {
	seen := make(map[int]bool, len(images))
	for n := range images {
		seen[n] = true
	}
	for _, n := range requested {
		seen[n] = true
	}
	pages := make([]int, 0, len(seen))
	for n := range seen {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages
}

// CacheStatsSnapshot exposes the shared cache's counters, or zeros when
// caching is disabled.
func (o *Orchestrator) CacheStatsSnapshot() tilecache.Stats {
	if o.cache == nil {
		return tilecache.Stats{}
	}
	return o.cache.Stats()
}
