// Package pdf acquires page rasters and page text from PDF drawings.
package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Rasterizer produces one full-resolution raster image per PDF page via
// pdfcpu image extraction. It satisfies pipeline.PageSource.
type Rasterizer struct {
	// dpi, when positive, normalizes each page raster to the page's
	// physical size at this resolution. Zero keeps native resolution.
	dpi int
}

// Option customizes a Rasterizer.
type Option func(*Rasterizer)

// WithDPI sets the target rendering resolution.
func WithDPI(dpi int) Option {
	return func(r *Rasterizer) {
		if dpi > 0 {
			r.dpi = dpi
		}
	}
}

// NewRasterizer creates a page rasterizer.
func NewRasterizer(opts ...Option) *Rasterizer {
	r := &Rasterizer{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PageImages returns the raster for each requested page (1-indexed; empty
// means all pages). Pages that cannot be rendered, or render to a
// zero-area image, are omitted from the map and logged; missing pages are
// a recoverable per-page condition, not an error.
func (r *Rasterizer) PageImages(filename string, pages []int) (map[int]image.Image, error) {
	tempDir, err := os.MkdirTemp("", "planscan-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var pageStrings []string
	if len(pages) > 0 {
		pageStrings = make([]string, len(pages))
		for i, n := range pages {
			pageStrings[i] = strconv.Itoa(n)
		}
	}

	if err := api.ExtractImagesFile(filename, tempDir, pageStrings, nil); err != nil {
		return nil, fmt.Errorf("failed to extract page images from PDF: %w", err)
	}

	result, err := collectPageImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load extracted page images: %w", err)
	}

	if r.dpi > 0 {
		r.normalizeToDPI(filename, result)
	}
	return result, nil
}

// normalizeToDPI resizes each page raster to the page's media box size at
// the configured resolution. Rasters already within 2% of the target are
// left untouched.
func (r *Rasterizer) normalizeToDPI(filename string, images map[int]image.Image) {
	dims, err := api.PageDimsFile(filename)
	if err != nil {
		slog.Warn("could not read page dimensions; keeping native raster size", "error", err)
		return
	}

	for pageNum, img := range images {
		if pageNum < 1 || pageNum > len(dims) {
			continue
		}
		// Media box dimensions are in points (1/72 inch).
		targetW := int(math.Round(dims[pageNum-1].Width / 72.0 * float64(r.dpi)))
		if targetW <= 0 {
			continue
		}
		w := img.Bounds().Dx()
		if math.Abs(float64(w-targetW)) <= 0.02*float64(targetW) {
			continue
		}
		images[pageNum] = imaging.Resize(img, targetW, 0, imaging.Linear)
		slog.Debug("normalized page raster", "page", pageNum, "from_width", w, "to_width", targetW, "dpi", r.dpi)
	}
}

// collectPageImages walks the extraction directory and keeps the largest
// image per page (drawing sheets render as one full-page raster; small
// secondary images are logos and stamps).
func collectPageImages(dir string) (map[int]image.Image, error) {
	result := make(map[int]image.Image)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		pageNum, err := parsePageFromFilename(info.Name())
		if err != nil {
			return nil // not a page image
		}

		img, err := loadImageFile(path)
		if err != nil || img == nil {
			slog.Warn("skipping unreadable page image", "file", info.Name(), "error", err)
			return nil
		}
		b := img.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 {
			slog.Warn("skipping zero-area page image", "file", info.Name(), "page", pageNum)
			return nil
		}

		if existing, ok := result[pageNum]; ok {
			eb := existing.Bounds()
			if eb.Dx()*eb.Dy() >= b.Dx()*b.Dy() {
				return nil
			}
		}
		result[pageNum] = img
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadImageFile loads an image from a file path.
func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: extraction temp dir paths
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

// parsePageFromFilename extracts the page number from a pdfcpu extracted
// filename of the form page_<num>_image_<idx>.<ext>.
func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, errors.New("not a page file")
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	pageNum, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.New("invalid page number")
	}
	if pageNum < 1 {
		return 0, errors.New("page number out of range")
	}
	return pageNum, nil
}

// PageCount returns the number of pages in a PDF.
func PageCount(filename string) (int, error) {
	n, err := api.PageCountFile(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return n, nil
}
