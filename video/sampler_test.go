package video

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSamplerStride(t *testing.T) {
	tests := []struct {
		name           string
		totalFrames    int
		budget         int
		fixedStride    int
		expectedStride int
		expectedBudget int
	}{
		{name: "1000 frames over 100", totalFrames: 1000, budget: 100, fixedStride: 1, expectedStride: 10, expectedBudget: 100},
		{name: "fewer frames than budget", totalFrames: 40, budget: 100, fixedStride: 1, expectedStride: 1, expectedBudget: 100},
		{name: "uneven division truncates", totalFrames: 1099, budget: 100, fixedStride: 1, expectedStride: 10, expectedBudget: 100},
		{name: "unknown count uses fixed stride", totalFrames: 0, budget: 100, fixedStride: 3, expectedStride: 3, expectedBudget: 100},
		{name: "unknown count default stride", totalFrames: 0, budget: 50, fixedStride: 0, expectedStride: 1, expectedBudget: 50},
		{name: "default budget", totalFrames: 3000, budget: 0, fixedStride: 1, expectedStride: 30, expectedBudget: DefaultFrameBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSampler(tt.totalFrames, tt.budget, tt.fixedStride)
			assert.Equal(t, tt.expectedStride, s.Stride())
			assert.Equal(t, tt.expectedBudget, s.Budget())
		})
	}
}

func TestSamplerHardCap(t *testing.T) {
	s := NewSampler(0, 5, 1)
	processed := 0
	for i := 0; i < 100; i++ {
		if s.Done() {
			break
		}
		if s.Eligible(i) {
			s.Mark()
			processed++
		}
	}
	assert.Equal(t, 5, processed)
	assert.True(t, s.Done())
	assert.False(t, s.Eligible(10))
}

func TestSamplerEligibility(t *testing.T) {
	s := NewSampler(1000, 100, 1)
	var picked []int
	for i := 0; i < 1000; i++ {
		if s.Eligible(i) {
			picked = append(picked, i)
			s.Mark()
		}
	}
	require.Len(t, picked, 100)
	assert.Equal(t, 0, picked[0])
	assert.Equal(t, 990, picked[99])
	assert.Equal(t, 100, s.Processed())
}

func TestSyntheticSource(t *testing.T) {
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	src := &Synthetic{Count: 3, Width: 640, Height: 480, Rate: 10, Start: start}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f, err := src.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, f.Index)
		assert.Equal(t, 480, f.Height)
		assert.Equal(t, start.Add(time.Duration(i)*100*time.Millisecond), f.Timestamp)
	}

	_, err := src.Read(ctx)
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, 3, src.FrameCount())

	src.Unbounded = true
	assert.Zero(t, src.FrameCount())
	assert.NoError(t, src.Close())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSynthetic(10, 1, 1).Read(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyntheticSkip(t *testing.T) {
	src := NewSynthetic(3, 8, 8)
	ctx := context.Background()

	require.NoError(t, src.Skip(ctx))
	require.NoError(t, src.Skip(ctx))
	f, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Index)
	assert.ErrorIs(t, src.Skip(ctx), io.EOF)
}
