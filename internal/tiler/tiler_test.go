package tiler

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planscan-tech/planscan/internal/testutil"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"zero tile size", func(o *Options) { o.TileSize = 0 }, true},
		{"negative tile size", func(o *Options) { o.TileSize = -640 }, true},
		{"negative overlap", func(o *Options) { o.Overlap = -0.1 }, true},
		{"overlap of one", func(o *Options) { o.Overlap = 1.0 }, true},
		{"overlap above one", func(o *Options) { o.Overlap = 1.5 }, true},
		{"zero overlap", func(o *Options) { o.Overlap = 0 }, false},
		{"near-total overlap yields zero stride", func(o *Options) {
			o.TileSize = 10
			o.Overlap = 0.99
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerateNilImage(t *testing.T) {
	_, _, err := Generate(nil, DefaultOptions())
	assert.Error(t, err)
}

func TestGenerateSmallImage(t *testing.T) {
	img := testutil.NoisySheet(320, 320)
	tiles, stats, err := Generate(img, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, tiles)
	assert.Equal(t, 0, stats.Created)
}

func TestGenerateGrid(t *testing.T) {
	// 1280x1280 at tile 640 / overlap 0.25 (stride 480): offsets 0, 480,
	// and a flush-to-edge 640 on each axis give a 3x3 grid.
	opts := DefaultOptions()
	opts.SkipBlank = false
	opts.Prioritize = false

	img := testutil.NoisySheet(1280, 1280)
	tiles, stats, err := Generate(img, opts)
	require.NoError(t, err)
	require.Len(t, tiles, 9)
	assert.Equal(t, 9, stats.Created)
	assert.Equal(t, 9, stats.Kept)

	wantOffsets := []int{0, 480, 640}
	i := 0
	for _, y := range wantOffsets {
		for _, x := range wantOffsets {
			assert.Equal(t, x, tiles[i].X)
			assert.Equal(t, y, tiles[i].Y)
			assert.Equal(t, 640, tiles[i].Width)
			assert.Equal(t, 640, tiles[i].Height)
			i++
		}
	}
}

func TestGenerateExactFit(t *testing.T) {
	// 640x640 with tile 640 yields exactly one tile with no duplicate
	// flush offset.
	opts := DefaultOptions()
	opts.SkipBlank = false

	tiles, _, err := Generate(testutil.NoisySheet(640, 640), opts)
	require.NoError(t, err)
	require.Len(t, tiles, 1)
	assert.Equal(t, 0, tiles[0].X)
	assert.Equal(t, 0, tiles[0].Y)
}

func TestGenerateCoversFullPage(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipBlank = false
	opts.TileSize = 100
	opts.Overlap = 0.3

	width, height := 1017, 733
	tiles, _, err := Generate(testutil.NoisySheet(width, height), opts)
	require.NoError(t, err)
	require.NotEmpty(t, tiles)

	covered := image.Rectangle{}
	for _, tile := range tiles {
		r := image.Rect(tile.X, tile.Y, tile.X+tile.Width, tile.Y+tile.Height)
		assert.True(t, r.In(image.Rect(0, 0, width, height)), "tile %v exceeds page", r)
		covered = covered.Union(r)
	}
	assert.Equal(t, image.Rect(0, 0, width, height), covered)
}

func TestGenerateBlankFiltering(t *testing.T) {
	opts := DefaultOptions()
	opts.Prioritize = false

	// One 200px mark inside the top-left tile; everything else is white.
	img := testutil.SheetWithMarks(1280, 1280, testutil.Mark{X: 320, Y: 320, Size: 200})

	tiles, stats, err := Generate(img, opts)
	require.NoError(t, err)
	assert.Equal(t, 9, stats.Created)
	assert.Equal(t, stats.Created, stats.Kept+stats.BlankFlagged)
	require.Len(t, tiles, 1)
	assert.Equal(t, 0, tiles[0].X)
	assert.Equal(t, 0, tiles[0].Y)
	assert.Equal(t, 8, stats.BlankFlagged)
}

func TestGenerateEdgeFiltering(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipBlank = false
	opts.SkipEdges = true
	opts.EdgeMargin = 50
	opts.TileSize = 100
	opts.Overlap = 0

	// 400x400 page, 4x4 grid of 100px tiles. Only the inner 2x2 block is
	// at least 50px from every boundary.
	tiles, stats, err := Generate(testutil.NoisySheet(400, 400), opts)
	require.NoError(t, err)
	assert.Equal(t, 16, stats.Created)
	assert.Equal(t, 12, stats.EdgeFiltered)
	require.Len(t, tiles, 4)
	for _, tile := range tiles {
		assert.GreaterOrEqual(t, tile.X, 50)
		assert.GreaterOrEqual(t, tile.Y, 50)
		assert.LessOrEqual(t, tile.X+tile.Width, 350)
		assert.LessOrEqual(t, tile.Y+tile.Height, 350)
	}
}

func TestGeneratePrioritization(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipBlank = false
	opts.TileSize = 100
	opts.Overlap = 0

	// Left half busy, right half empty: busy tiles must come first.
	img := testutil.BlankSheet(200, 100)
	for y := 0; y < 100; y += 4 {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.Black)
		}
	}

	tiles, _, err := Generate(img, opts)
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, 0, tiles[0].X, "busy tile should be first")
	assert.Greater(t, tiles[0].Complexity, tiles[1].Complexity)
}

func TestGenerateWithoutPrioritizationKeepsGridOrder(t *testing.T) {
	opts := DefaultOptions()
	opts.SkipBlank = false
	opts.Prioritize = false
	opts.TileSize = 100
	opts.Overlap = 0

	tiles, _, err := Generate(testutil.NoisySheet(300, 100), opts)
	require.NoError(t, err)
	require.Len(t, tiles, 3)
	for i, tile := range tiles {
		assert.Equal(t, i, tile.ID)
		assert.Equal(t, i*100, tile.X)
		assert.Equal(t, 0.0, tile.Complexity)
	}
}

func TestTileOffsets(t *testing.T) {
	assert.Equal(t, []int{0, 480, 640}, tileOffsets(1280, 640, 480))
	assert.Equal(t, []int{0}, tileOffsets(640, 640, 480))
	assert.Equal(t, []int{0, 100, 200}, tileOffsets(300, 100, 100))
	// Grid not reaching the far edge gains a flush offset.
	assert.Equal(t, []int{0, 100, 150}, tileOffsets(250, 100, 100))
}
