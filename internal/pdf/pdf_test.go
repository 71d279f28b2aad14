package pdf

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     int
		wantErr  bool
	}{
		{"page_1_image_0.png", 1, false},
		{"page_12_image_3.jpg", 12, false},
		{"page_7_image_0.jpeg", 7, false},
		{"logo.png", 0, true},
		{"page_abc_image_0.png", 0, true},
		{"page_0_image_0.png", 0, true},
		{"page_-3_image_0.png", 0, true},
		{"notes.txt", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := parsePageFromFilename(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

func TestCollectPageImages(t *testing.T) {
	dir := t.TempDir()

	// Page 1 renders as one full-page raster plus a small logo; the
	// largest image wins.
	writePNG(t, filepath.Join(dir, "page_1_image_0.png"), 200, 150)
	writePNG(t, filepath.Join(dir, "page_1_image_1.png"), 20, 20)
	writePNG(t, filepath.Join(dir, "page_2_image_0.png"), 100, 100)

	// Non-page files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	result, err := collectPageImages(dir)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 200, result[1].Bounds().Dx(), "largest image per page is kept")
	assert.Equal(t, 100, result[2].Bounds().Dx())
}

func TestCollectPageImagesSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "page_1_image_0.png"), 50, 50)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_2_image_0.png"), []byte("not an image"), 0o644))

	result, err := collectPageImages(dir)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Contains(t, result, 1)
}

func TestExtractTextMissingFile(t *testing.T) {
	_, err := ExtractText("/nonexistent/drawing.pdf", nil)
	assert.ErrorContains(t, err, "failed to open PDF")
}

func TestNewRasterizerOptions(t *testing.T) {
	assert.Equal(t, 0, NewRasterizer().dpi, "native resolution by default")
	assert.Equal(t, 350, NewRasterizer(WithDPI(350)).dpi)
	assert.Equal(t, 0, NewRasterizer(WithDPI(-100)).dpi, "non-positive DPI is ignored")
}
