package config

// Config is the complete configuration for the planscan application. It
// covers the analyze and serve commands and loads from configuration
// files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	ModelPath string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Tiling configuration
	Tiling TilingConfig `mapstructure:"tiling" yaml:"tiling" json:"tiling"`

	// Detection configuration
	Detection DetectionConfig `mapstructure:"detection" yaml:"detection" json:"detection"`

	// Result cache configuration
	Cache CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`

	// PDF rasterization configuration
	PDF PDFConfig `mapstructure:"pdf" yaml:"pdf" json:"pdf"`

	// Text analysis assistant configuration
	Assistant AssistantConfig `mapstructure:"assistant" yaml:"assistant" json:"assistant"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// TilingConfig controls how pages are split into tiles.
type TilingConfig struct {
	TileSize          int     `mapstructure:"tile_size" yaml:"tile_size" json:"tile_size"`
	Overlap           float64 `mapstructure:"overlap" yaml:"overlap" json:"overlap"`
	SkipBlank         bool    `mapstructure:"skip_blank" yaml:"skip_blank" json:"skip_blank"`
	SkipEdges         bool    `mapstructure:"skip_edges" yaml:"skip_edges" json:"skip_edges"`
	EdgeMargin        int     `mapstructure:"edge_margin" yaml:"edge_margin" json:"edge_margin"`
	BlankThreshold    float64 `mapstructure:"blank_threshold" yaml:"blank_threshold" json:"blank_threshold"`
	VarianceThreshold float64 `mapstructure:"variance_threshold" yaml:"variance_threshold" json:"variance_threshold"`
	Prioritize        bool    `mapstructure:"prioritize" yaml:"prioritize" json:"prioritize"`
}

// DetectionConfig controls model inference and dispatch.
type DetectionConfig struct {
	Confidence      float64 `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
	IoUThreshold    float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	RawNMSThreshold float64 `mapstructure:"raw_nms_threshold" yaml:"raw_nms_threshold" json:"raw_nms_threshold"`
	Parallel        bool    `mapstructure:"parallel" yaml:"parallel" json:"parallel"`
	MaxWorkers      int     `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
	NumThreads      int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	EarlyStopCount  int     `mapstructure:"early_stop_count" yaml:"early_stop_count" json:"early_stop_count"`
	ClassNames      []string `mapstructure:"class_names" yaml:"class_names" json:"class_names"`
}

// CacheConfig controls the tile result cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxSize int  `mapstructure:"max_size" yaml:"max_size" json:"max_size"`
}

// PDFConfig controls PDF rasterization.
type PDFConfig struct {
	DPI int `mapstructure:"dpi" yaml:"dpi" json:"dpi"`
}

// AssistantConfig configures the text-analysis assistant. The API key is
// normally supplied via PLANSCAN_ASSISTANT_API_KEY rather than a file.
type AssistantConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Model  string `mapstructure:"model" yaml:"model" json:"model"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	JobRetention    int    `mapstructure:"job_retention_min" yaml:"job_retention_min" json:"job_retention_min"`
}
