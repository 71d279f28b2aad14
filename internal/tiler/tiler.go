package tiler

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"
)

// Tile is a fixed-size crop of a page image. X and Y locate the tile's
// top-left corner in page coordinates; ID is a per-page sequence used for
// bookkeeping only.
type Tile struct {
	ID         int
	X          int
	Y          int
	Width      int
	Height     int
	Image      image.Image
	Complexity float64
}

// Options controls tile generation, filtering, and prioritization.
type Options struct {
	TileSize   int     // Edge length of each square tile
	Overlap    float64 // Overlap fraction between neighbors, in [0, 1)
	SkipBlank  bool    // Drop near-empty tiles
	SkipEdges  bool    // Drop tiles near the page boundary
	EdgeMargin int     // Margin in pixels for edge filtering
	// BlankThreshold is the near-white pixel ratio above which a tile is
	// considered blank.
	BlankThreshold float64
	// VarianceThreshold is the luminance variance below which a tile is
	// considered uniform.
	VarianceThreshold float64
	// Prioritize sorts kept tiles by descending complexity so the densest
	// tiles are processed first.
	Prioritize bool
}

// DefaultOptions returns tiling defaults tuned for 350 DPI drawing rasters.
func DefaultOptions() Options {
	return Options{
		TileSize:          640,
		Overlap:           0.25,
		SkipBlank:         true,
		SkipEdges:         false,
		EdgeMargin:        50,
		BlankThreshold:    0.95,
		VarianceThreshold: 100,
		Prioritize:        true,
	}
}

// Validate checks tiling options for configuration errors.
func (o Options) Validate() error {
	if o.TileSize <= 0 {
		return fmt.Errorf("tile size must be positive, got %d", o.TileSize)
	}
	if o.Overlap < 0 || o.Overlap >= 1 {
		return fmt.Errorf("overlap fraction must be in [0, 1), got %g", o.Overlap)
	}
	if o.stride() < 1 {
		return fmt.Errorf("overlap %g with tile size %d yields non-positive stride", o.Overlap, o.TileSize)
	}
	return nil
}

func (o Options) stride() int {
	return int(float64(o.TileSize) * (1 - o.Overlap))
}

// Stats reports how many tiles were created and why tiles were dropped.
type Stats struct {
	Created      int `json:"created"`
	EdgeFiltered int `json:"edge_filtered"`
	BlankFlagged int `json:"blank_filtered"`
	Kept         int `json:"kept"`
}

// Generate partitions a page image into overlapping tiles, applies the
// configured filters, and scores surviving tiles by complexity. An image
// smaller than the tile size in either dimension yields zero tiles.
func Generate(img image.Image, opts Options) ([]Tile, Stats, error) {
	var stats Stats
	if img == nil {
		return nil, stats, errors.New("input image is nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, stats, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	size := opts.TileSize
	stride := opts.stride()

	if width < size || height < size {
		return nil, stats, nil
	}

	xs := tileOffsets(width, size, stride)
	ys := tileOffsets(height, size, stride)

	tiles := make([]Tile, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			stats.Created++
			if opts.SkipEdges && isEdgeTile(x, y, size, width, height, opts.EdgeMargin) {
				stats.EdgeFiltered++
				continue
			}
			crop := imaging.Crop(img, image.Rect(bounds.Min.X+x, bounds.Min.Y+y,
				bounds.Min.X+x+size, bounds.Min.Y+y+size))
			if opts.SkipBlank && isBlankTile(crop, opts.BlankThreshold, opts.VarianceThreshold) {
				stats.BlankFlagged++
				continue
			}
			t := Tile{
				ID:     len(tiles),
				X:      x,
				Y:      y,
				Width:  size,
				Height: size,
				Image:  crop,
			}
			if opts.Prioritize {
				t.Complexity = Complexity(crop)
			}
			tiles = append(tiles, t)
			stats.Kept++
		}
	}

	if opts.Prioritize && len(tiles) > 1 {
		sort.SliceStable(tiles, func(i, j int) bool {
			return tiles[i].Complexity > tiles[j].Complexity
		})
	}

	return tiles, stats, nil
}

// tileOffsets returns the tile start offsets along one axis: the regular
// grid plus a final flush-to-edge offset when the grid does not already
// reach the far boundary exactly.
func tileOffsets(extent, size, stride int) []int {
	var offsets []int
	for pos := 0; pos+size <= extent; pos += stride {
		offsets = append(offsets, pos)
	}
	last := extent - size
	if len(offsets) == 0 || offsets[len(offsets)-1] != last {
		offsets = append(offsets, last)
	}
	return offsets
}
