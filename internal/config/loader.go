package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "planscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "PLANSCAN"
)

// Loader handles loading configuration from files, environment
// variables, and flag bindings.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a configuration loader backed by the global viper
// instance so cobra flag bindings take effect.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load loads configuration from the search paths, environment variables,
// and defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// Missing config files are fine, defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadWithFile loads configuration from a specific file path instead of
// the search paths.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// GetConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for flag binding.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}

	l.v.AddConfigPath("/etc/planscan")

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "planscan"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "planscan"))
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers default values for all configuration keys.
func (l *Loader) setDefaults() {
	defaults := Default()

	l.v.SetDefault("model_path", defaults.ModelPath)
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("tiling.tile_size", defaults.Tiling.TileSize)
	l.v.SetDefault("tiling.overlap", defaults.Tiling.Overlap)
	l.v.SetDefault("tiling.skip_blank", defaults.Tiling.SkipBlank)
	l.v.SetDefault("tiling.skip_edges", defaults.Tiling.SkipEdges)
	l.v.SetDefault("tiling.edge_margin", defaults.Tiling.EdgeMargin)
	l.v.SetDefault("tiling.blank_threshold", defaults.Tiling.BlankThreshold)
	l.v.SetDefault("tiling.variance_threshold", defaults.Tiling.VarianceThreshold)
	l.v.SetDefault("tiling.prioritize", defaults.Tiling.Prioritize)

	l.v.SetDefault("detection.confidence", defaults.Detection.Confidence)
	l.v.SetDefault("detection.iou_threshold", defaults.Detection.IoUThreshold)
	l.v.SetDefault("detection.raw_nms_threshold", defaults.Detection.RawNMSThreshold)
	l.v.SetDefault("detection.parallel", defaults.Detection.Parallel)
	l.v.SetDefault("detection.max_workers", defaults.Detection.MaxWorkers)
	l.v.SetDefault("detection.num_threads", defaults.Detection.NumThreads)
	l.v.SetDefault("detection.early_stop_count", defaults.Detection.EarlyStopCount)
	l.v.SetDefault("detection.class_names", defaults.Detection.ClassNames)

	l.v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	l.v.SetDefault("cache.max_size", defaults.Cache.MaxSize)

	l.v.SetDefault("pdf.dpi", defaults.PDF.DPI)

	l.v.SetDefault("assistant.api_key", defaults.Assistant.APIKey)
	l.v.SetDefault("assistant.model", defaults.Assistant.Model)

	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.job_retention_min", defaults.Server.JobRetention)
}
