package tilecache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planscan-tech/planscan/internal/detector"
)

func det(cx float64, conf float64) detector.Detection {
	return detector.Detection{
		CenterX:    cx,
		CenterY:    10,
		Width:      20,
		Height:     20,
		Confidence: conf,
		ClassName:  "smoke_detector",
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := New(size)
		assert.Error(t, err, "size %d", size)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	_, ok := c.Get("fp1")
	assert.False(t, ok)

	want := []detector.Detection{det(5, 0.9), det(50, 0.7)}
	c.Set("fp1", want)

	got, ok := c.Get("fp1")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	c.Set("fp", []detector.Detection{det(5, 0.9)})

	got, ok := c.Get("fp")
	require.True(t, ok)
	got[0].CenterX = 999 // remap in place, as the pipeline does

	again, ok := c.Get("fp")
	require.True(t, ok)
	assert.Equal(t, 5.0, again[0].CenterX)
}

func TestSetDetachesFromCallerSlice(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	src := []detector.Detection{det(5, 0.9)}
	c.Set("fp", src)
	src[0].CenterX = 999

	got, ok := c.Get("fp")
	require.True(t, ok)
	assert.Equal(t, 5.0, got[0].CenterX)
}

func TestEvictionAtCapacity(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("fp%d", i), []detector.Detection{det(float64(i), 0.5)})
	}

	// fp0 was least recently used and must be gone.
	_, ok := c.Get("fp0")
	assert.False(t, ok)
	for i := 1; i < 4; i++ {
		_, ok := c.Get(fmt.Sprintf("fp%d", i))
		assert.True(t, ok, "fp%d should survive", i)
	}
	assert.Equal(t, 3, c.Stats().Size)
}

func TestGetProtectsFromEviction(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	c.Set("a", nil)
	c.Set("b", nil)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", nil)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	assert.True(t, okA)
	assert.False(t, okB)
}

func TestStats(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	c.Set("fp", nil)
	c.Get("fp")
	c.Get("fp")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
	assert.Equal(t, 1, s.Size)

	c.Clear()
	s = c.Stats()
	assert.Equal(t, uint64(0), s.Hits)
	assert.Equal(t, uint64(0), s.Misses)
	assert.Equal(t, 0.0, s.HitRate)
	assert.Equal(t, 0, s.Size)
}
