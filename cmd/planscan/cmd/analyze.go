package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/planscan-tech/planscan/internal/config"
	"github.com/planscan-tech/planscan/internal/detector"
	"github.com/planscan-tech/planscan/internal/pdf"
	"github.com/planscan-tech/planscan/internal/pipeline"
	"github.com/planscan-tech/planscan/internal/summarize"
	"github.com/planscan-tech/planscan/internal/tilecache"
	"github.com/planscan-tech/planscan/internal/tiler"
	"github.com/planscan-tech/planscan/internal/visualize"
)

// analyzeCmd runs device detection on a PDF from the command line.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [pdf file]",
	Short: "Detect fire alarm devices in a PDF drawing set",
	Long: `Analyze rasterizes each page of a PDF drawing set, splits it into
overlapping tiles, and runs every tile through the detection model.
Duplicate detections along tile seams are merged before reporting.

Examples:
  planscan analyze drawings.pdf
  planscan analyze drawings.pdf --pages 1,3-5 --confidence 0.5
  planscan analyze drawings.pdf --output result.json --overlay-dir overlays/
  planscan analyze drawings.pdf --text`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	filename := args[0]
	if _, err := os.Stat(filename); err != nil {
		return fmt.Errorf("cannot read %s: %w", filename, err)
	}

	cfg := applyAnalyzeFlags(cmd, GetConfig())

	orch, rasterizer, cleanup, err := buildAnalysisStack(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts, err := analyzeOptionsFromConfig(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	doc, err := orch.AnalyzePDF(ctx, rasterizer, filename, opts, pipeline.LogProgressCallback{})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if overlayDir, _ := cmd.Flags().GetString("overlay-dir"); overlayDir != "" {
		if err := writeOverlays(rasterizer, filename, doc, overlayDir); err != nil {
			return err
		}
	}

	if runText, _ := cmd.Flags().GetBool("text"); runText {
		attachTextAnalysis(ctx, cmd, cfg, filename)
	}

	return writeResult(cmd, doc)
}

// applyAnalyzeFlags overlays changed analyze flags onto the loaded config.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) *config.Config {
	if cmd.Flags().Changed("confidence") {
		cfg.Detection.Confidence, _ = cmd.Flags().GetFloat64("confidence")
	}
	if cmd.Flags().Changed("iou") {
		cfg.Detection.IoUThreshold, _ = cmd.Flags().GetFloat64("iou")
	}
	if cmd.Flags().Changed("tile-size") {
		cfg.Tiling.TileSize, _ = cmd.Flags().GetInt("tile-size")
	}
	if cmd.Flags().Changed("overlap") {
		cfg.Tiling.Overlap, _ = cmd.Flags().GetFloat64("overlap")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Detection.MaxWorkers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("sequential") {
		seq, _ := cmd.Flags().GetBool("sequential")
		cfg.Detection.Parallel = !seq
	}
	if cmd.Flags().Changed("early-stop") {
		cfg.Detection.EarlyStopCount, _ = cmd.Flags().GetInt("early-stop")
	}
	if cmd.Flags().Changed("no-cache") {
		noCache, _ := cmd.Flags().GetBool("no-cache")
		cfg.Cache.Enabled = !noCache
	}
	if cmd.Flags().Changed("dpi") {
		cfg.PDF.DPI, _ = cmd.Flags().GetInt("dpi")
	}
	return cfg
}

// analyzeOptionsFromConfig translates config into pipeline options.
func analyzeOptionsFromConfig(cmd *cobra.Command, cfg *config.Config) (pipeline.AnalyzeOptions, error) {
	opts := pipeline.AnalyzeOptions{
		Tiling: tiler.Options{
			TileSize:          cfg.Tiling.TileSize,
			Overlap:           cfg.Tiling.Overlap,
			SkipBlank:         cfg.Tiling.SkipBlank,
			SkipEdges:         cfg.Tiling.SkipEdges,
			EdgeMargin:        cfg.Tiling.EdgeMargin,
			BlankThreshold:    cfg.Tiling.BlankThreshold,
			VarianceThreshold: cfg.Tiling.VarianceThreshold,
			Prioritize:        cfg.Tiling.Prioritize,
		},
		Run: pipeline.Options{
			Confidence:     cfg.Detection.Confidence,
			Parallel:       cfg.Detection.Parallel,
			MaxWorkers:     cfg.Detection.MaxWorkers,
			UseCache:       cfg.Cache.Enabled,
			EarlyStopCount: cfg.Detection.EarlyStopCount,
			BoxScale:       1.0,
		},
	}

	if spec, _ := cmd.Flags().GetString("pages"); spec != "" {
		pages, err := pipeline.ParsePageSpec(spec)
		if err != nil {
			return opts, err
		}
		opts.Pages = pages
	}
	return opts, nil
}

// buildAnalysisStack constructs the detector, cache, orchestrator, and
// rasterizer from configuration.
func buildAnalysisStack(cfg *config.Config) (*pipeline.Orchestrator, *pdf.Rasterizer, func(), error) {
	detCfg := detector.DefaultConfig()
	detCfg.ModelPath = cfg.ModelPath
	detCfg.ClassNames = cfg.Detection.ClassNames
	detCfg.RawNMSThreshold = cfg.Detection.RawNMSThreshold
	detCfg.NumThreads = cfg.Detection.NumThreads

	det, err := detector.NewSymbolDetector(detCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load detection model: %w", err)
	}
	cleanup := func() { _ = det.Close() }

	var cache *tilecache.Cache
	if cfg.Cache.Enabled {
		cache, err = tilecache.New(cfg.Cache.MaxSize)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("failed to create result cache: %w", err)
		}
	}

	orch, err := pipeline.NewOrchestrator(det, cache)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	if err := orch.SetIoUThreshold(cfg.Detection.IoUThreshold); err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	return orch, pdf.NewRasterizer(pdf.WithDPI(cfg.PDF.DPI)), cleanup, nil
}

// writeOverlays renders device overlays for every page that has devices.
func writeOverlays(rasterizer *pdf.Rasterizer, filename string, doc *pipeline.DocumentAnalysis, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create overlay directory: %w", err)
	}

	var pages []int
	byPage := make(map[int]pipeline.PageAnalysis)
	for _, page := range doc.Pages {
		if len(page.Devices) == 0 {
			continue
		}
		pages = append(pages, page.PageNumber)
		byPage[page.PageNumber] = page
	}
	if len(pages) == 0 {
		return nil
	}
	sort.Ints(pages)

	images, err := rasterizer.PageImages(filename, pages)
	if err != nil {
		return fmt.Errorf("failed to rasterize pages for overlays: %w", err)
	}

	for _, pageNum := range pages {
		img, ok := images[pageNum]
		if !ok {
			continue
		}
		overlay := visualize.DrawDevices(img, byPage[pageNum].Devices, visualize.DefaultOptions())
		out := filepath.Join(dir, fmt.Sprintf("page_%03d.png", pageNum))
		if err := imaging.Save(overlay, out); err != nil {
			return fmt.Errorf("failed to save overlay %s: %w", out, err)
		}
	}
	return nil
}

// attachTextAnalysis runs the assistant over the document text and prints
// its findings to stderr-side logging; failures never fail the command.
func attachTextAnalysis(ctx context.Context, cmd *cobra.Command, cfg *config.Config, filename string) {
	client := summarize.NewClient(assistantAPIKey(cfg), summarize.WithModel(cfg.Assistant.Model))
	if !client.Available() {
		fmt.Fprintln(cmd.ErrOrStderr(), "text analysis skipped: assistant API key not configured")
		return
	}

	pages, err := pdf.ExtractText(filename, nil)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "text analysis skipped: %v\n", err)
		return
	}
	analysis, err := client.AnalyzePages(ctx, pages)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "text analysis failed: %v\n", err)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nProject: %s (%s)\n", analysis.ProjectInfo.ProjectName, analysis.ProjectInfo.ProjectLocation)
	fmt.Fprintf(cmd.OutOrStdout(), "Fire alarm pages: %v\n", analysis.FireAlarmPages)
	for _, note := range analysis.FireAlarmNotes {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", note)
	}
}

func assistantAPIKey(cfg *config.Config) string {
	if cfg.Assistant.APIKey != "" {
		return cfg.Assistant.APIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

// writeResult prints the analysis as JSON to stdout or the output file.
func writeResult(cmd *cobra.Command, doc *pipeline.DocumentAnalysis) error {
	data, err := doc.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Found %d devices across %d pages; result written to %s\n",
			doc.TotalDevices, doc.TotalPages, out)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringP("output", "o", "", "write JSON result to file instead of stdout")
	analyzeCmd.Flags().String("pages", "", "pages to analyze, e.g. 1,3,5-8 (default all)")
	analyzeCmd.Flags().Float64("confidence", 0.40, "minimum detection confidence (0..1)")
	analyzeCmd.Flags().Float64("iou", 0.5, "IoU threshold for merging overlapping detections")
	analyzeCmd.Flags().Int("tile-size", 640, "tile edge length in pixels")
	analyzeCmd.Flags().Float64("overlap", 0.25, "tile overlap fraction (0..1)")
	analyzeCmd.Flags().Int("workers", 4, "parallel detection workers")
	analyzeCmd.Flags().Bool("sequential", false, "process tiles sequentially instead of in parallel")
	analyzeCmd.Flags().Int("early-stop", 0, "stop a page after this many tiles yield detections (0 = never)")
	analyzeCmd.Flags().Bool("no-cache", false, "disable the tile result cache")
	analyzeCmd.Flags().Int("dpi", 350, "target page rasterization resolution")
	analyzeCmd.Flags().String("overlay-dir", "", "write per-page overlay PNGs to this directory")
	analyzeCmd.Flags().Bool("text", false, "also run assistant text analysis over the drawing notes")
}
