// Package config loads and validates planscan configuration from files,
// environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
)

// Default returns the built-in configuration, matching the defaults the
// CLI flags advertise.
func Default() *Config {
	return &Config{
		ModelPath: "models/fire-alarm.onnx",
		LogLevel:  "info",
		Tiling: TilingConfig{
			TileSize:          640,
			Overlap:           0.25,
			SkipBlank:         true,
			SkipEdges:         false,
			EdgeMargin:        50,
			BlankThreshold:    0.95,
			VarianceThreshold: 100,
			Prioritize:        true,
		},
		Detection: DetectionConfig{
			Confidence:      0.40,
			IoUThreshold:    0.5,
			RawNMSThreshold: 0.45,
			Parallel:        true,
			MaxWorkers:      4,
			NumThreads:      0,
			EarlyStopCount:  0,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 1000,
		},
		PDF: PDFConfig{
			DPI: 350,
		},
		Assistant: AssistantConfig{
			Model: "gemini-2.5-flash",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxUploadMB:     200,
			ShutdownTimeout: 10,
			JobRetention:    60,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	if c.Tiling.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("tiling.tile_size must be positive, got %d", c.Tiling.TileSize))
	}
	if c.Tiling.Overlap < 0 || c.Tiling.Overlap >= 1 {
		errs = append(errs, fmt.Errorf("tiling.overlap must be in [0, 1), got %g", c.Tiling.Overlap))
	}
	if c.Tiling.EdgeMargin < 0 {
		errs = append(errs, fmt.Errorf("tiling.edge_margin must be non-negative, got %d", c.Tiling.EdgeMargin))
	}
	if c.Tiling.BlankThreshold <= 0 || c.Tiling.BlankThreshold > 1 {
		errs = append(errs, fmt.Errorf("tiling.blank_threshold must be in (0, 1], got %g", c.Tiling.BlankThreshold))
	}

	if c.Detection.Confidence < 0 || c.Detection.Confidence > 1 {
		errs = append(errs, fmt.Errorf("detection.confidence must be in [0, 1], got %g", c.Detection.Confidence))
	}
	if c.Detection.IoUThreshold <= 0 || c.Detection.IoUThreshold > 1 {
		errs = append(errs, fmt.Errorf("detection.iou_threshold must be in (0, 1], got %g", c.Detection.IoUThreshold))
	}
	if c.Detection.RawNMSThreshold <= 0 || c.Detection.RawNMSThreshold > 1 {
		errs = append(errs, fmt.Errorf("detection.raw_nms_threshold must be in (0, 1], got %g", c.Detection.RawNMSThreshold))
	}
	if c.Detection.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("detection.max_workers must be at least 1, got %d", c.Detection.MaxWorkers))
	}
	if c.Detection.EarlyStopCount < 0 {
		errs = append(errs, fmt.Errorf("detection.early_stop_count must be non-negative, got %d", c.Detection.EarlyStopCount))
	}

	if c.Cache.Enabled && c.Cache.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_size must be positive when the cache is enabled, got %d", c.Cache.MaxSize))
	}

	if c.PDF.DPI <= 0 {
		errs = append(errs, fmt.Errorf("pdf.dpi must be positive, got %d", c.PDF.DPI))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}

	return errors.Join(errs...)
}
