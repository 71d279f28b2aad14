package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestLoader() *Loader {
	return &Loader{v: viper.New()}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithFileMissing(t *testing.T) {
	_, err := newTestLoader().LoadWithFile("/nonexistent/planscan.yaml")
	assert.ErrorContains(t, err, "does not exist")
}

func TestLoadWithFileAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "log_level: debug\n")

	cfg, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	// Everything not in the file comes from defaults.
	assert.Equal(t, 640, cfg.Tiling.TileSize)
	assert.Equal(t, 0.25, cfg.Tiling.Overlap)
	assert.Equal(t, 0.40, cfg.Detection.Confidence)
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
	assert.Equal(t, 350, cfg.PDF.DPI)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadWithFileOverrides(t *testing.T) {
	fixture, err := yaml.Marshal(map[string]any{
		"model_path": "custom/model.onnx",
		"tiling": map[string]any{
			"tile_size": 512,
			"overlap":   0.1,
		},
		"detection": map[string]any{
			"confidence":  0.6,
			"parallel":    false,
			"class_names": []string{"smoke_detector", "pull_station"},
		},
		"cache": map[string]any{
			"enabled": false,
		},
		"server": map[string]any{
			"port":              9090,
			"job_retention_min": 30,
		},
	})
	require.NoError(t, err)
	path := writeConfigFile(t, string(fixture))

	cfg, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "custom/model.onnx", cfg.ModelPath)
	assert.Equal(t, 512, cfg.Tiling.TileSize)
	assert.Equal(t, 0.1, cfg.Tiling.Overlap)
	assert.Equal(t, 0.6, cfg.Detection.Confidence)
	assert.False(t, cfg.Detection.Parallel)
	assert.Equal(t, []string{"smoke_detector", "pull_station"}, cfg.Detection.ClassNames)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.JobRetention)
}

func TestLoadWithFileRejectsInvalidValues(t *testing.T) {
	path := writeConfigFile(t, "tiling:\n  overlap: 1.5\n")

	_, err := newTestLoader().LoadWithFile(path)
	assert.ErrorContains(t, err, "tiling.overlap")
}

func TestLoadWithFileRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "tiling: [not a map\n")

	_, err := newTestLoader().LoadWithFile(path)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("PLANSCAN_TILING_TILE_SIZE", "320")
	t.Setenv("PLANSCAN_LOG_LEVEL", "warn")

	// Load from an empty directory so no config file is picked up.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(cwd) }()

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Tiling.TileSize)
	assert.Equal(t, "warn", cfg.LogLevel)
}
