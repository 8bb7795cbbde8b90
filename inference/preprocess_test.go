package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareInput(t *testing.T) {
	const size = 32
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}

	dst := make([]float32, 3*size*size)
	require.NoError(t, PrepareInput(img, size, dst))

	plane := size * size
	assert.InDelta(t, 1.0, dst[0], 1e-6)
	assert.InDelta(t, 0.0, dst[plane], 1e-6)
	assert.InDelta(t, 0.2, dst[2*plane], 1e-6)
	assert.InDelta(t, 1.0, dst[plane-1], 1e-6)
}

func TestPrepareInputResizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: 0, G: 255, B: 0, A: 255})
		}
	}

	dst := make([]float32, 3*16*16)
	require.NoError(t, PrepareInput(img, 16, dst))
	for i := 256; i < 512; i++ {
		assert.InDelta(t, 1.0, dst[i], 0.01)
	}
}

func TestPrepareInputShortBuffer(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	err := PrepareInput(img, 8, make([]float32, 10))
	assert.Error(t, err)
}

func TestAnchorCount(t *testing.T) {
	tests := []struct {
		size     int
		expected int
	}{
		{size: 640, expected: 8400},
		{size: 320, expected: 2100},
		{size: 1280, expected: 33600},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, AnchorCount(tt.size), "size %d", tt.size)
	}
}

func TestDefaultYOLOConfig(t *testing.T) {
	cfg := DefaultYOLOConfig()
	assert.Equal(t, 640, cfg.InputSize)
	assert.Equal(t, 80, cfg.NumClasses)
}
