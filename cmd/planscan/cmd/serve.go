package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/planscan-tech/planscan/internal/pipeline"
	"github.com/planscan-tech/planscan/internal/server"
	"github.com/planscan-tech/planscan/internal/summarize"
	"github.com/planscan-tech/planscan/internal/tiler"
)

// serveCmd starts the HTTP analysis API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the analysis API",
	Long: `Start an HTTP server exposing the analysis pipeline.

Endpoints:
  POST /api/analyze            - upload a PDF and start an analysis job
  POST /api/analyze/text       - run assistant text analysis on a PDF
  GET  /api/jobs/{id}          - job status and result
  GET  /api/jobs/{id}/export   - download the result as JSON
  GET  /api/visualize/{id}/{p} - PNG overlay for one analyzed page
  GET  /ws/jobs/{id}           - WebSocket progress feed
  GET  /healthz                - health check
  GET  /metrics                - Prometheus metrics

Examples:
  planscan serve
  planscan serve --port 8080 --host 0.0.0.0`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	host := cfg.Server.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}
	maxUploadMB := cfg.Server.MaxUploadMB
	if cmd.Flags().Changed("max-upload-size") {
		maxUploadMB, _ = cmd.Flags().GetInt("max-upload-size")
	}
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if cmd.Flags().Changed("shutdown-timeout") {
		shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	orch, rasterizer, cleanup, err := buildAnalysisStack(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var assistant *summarize.Client
	if key := assistantAPIKey(cfg); key != "" {
		assistant = summarize.NewClient(key, summarize.WithModel(cfg.Assistant.Model))
	}

	defaults := pipeline.AnalyzeOptions{
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

	srv := server.New(orch, rasterizer, assistant, server.Config{
		MaxUploadMB:  int64(maxUploadMB),
		JobRetention: time.Duration(cfg.Server.JobRetention) * time.Minute,
		Defaults:     defaults,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Jobs().RunSweeper(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("starting analysis server", "host", host, "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	} else {
		slog.Info("http server shutdown completed")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "0.0.0.0", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().Int("max-upload-size", 200, "maximum upload size in MB")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
}
