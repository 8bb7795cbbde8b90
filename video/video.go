// Package video - Frame sources and the frame sampling policy.
package video

import (
	"context"
	"image"
	"io"
	"time"
)

// Frame is a single frame of video.
type Frame struct {
	// Index is the zero-based position of the frame in its source.
	Index int
	// Image holds the pixels. Synthetic sources may leave it nil.
	Image image.Image
	// Width and Height are the frame dimensions in pixels.
	Width, Height int
	// Timestamp is the capture time for live sources or the stream position
	// added to the session start for stored video.
	Timestamp time.Time
}

// Source supplies a bounded, time-ordered sequence of frames.
//
// Read returns io.EOF once the source is exhausted.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	// FrameCount returns the total number of frames, or 0 when unknown (live streams).
	FrameCount() int
	// FPS returns the nominal frame rate, or 0 when unknown.
	FPS() float64
	Close() error
}

// Opener opens a Source from a locator such as a file path, device index or
// stream URL.
type Opener func(locator string) (Source, error)

// Skipper is implemented by sources that can advance past a frame without
// decoding its pixels. Skip returns io.EOF once the source is exhausted.
type Skipper interface {
	Skip(ctx context.Context) error
}

// Synthetic is an in-memory Source producing blank frames at a fixed rate.
//
// It backs tests and dry runs where no camera or video file is available.
type Synthetic struct {
	Count         int
	Width, Height int
	Rate          float64
	Start         time.Time
	// Unbounded hides Count from FrameCount to mimic a live stream.
	Unbounded bool

	next int
}

// NewSynthetic creates a synthetic source of count frames at 30 FPS.
func NewSynthetic(count, width, height int) *Synthetic {
	return &Synthetic{
		Count:  count,
		Width:  width,
		Height: height,
		Rate:   30,
		Start:  time.Now(),
	}
}

// Read returns the next blank frame.
func (s *Synthetic) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= s.Count {
		return Frame{}, io.EOF
	}
	f := Frame{
		Index:     s.next,
		Width:     s.Width,
		Height:    s.Height,
		Timestamp: s.Start.Add(offset(s.next, s.Rate)),
	}
	s.next++
	return f, nil
}

// Skip advances past the next frame.
func (s *Synthetic) Skip(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.next >= s.Count {
		return io.EOF
	}
	s.next++
	return nil
}

// FrameCount returns Count unless the source is marked unbounded.
func (s *Synthetic) FrameCount() int {
	if s.Unbounded {
		return 0
	}
	return s.Count
}

// FPS returns the configured rate.
func (s *Synthetic) FPS() float64 { return s.Rate }

// Close is a no-op.
func (s *Synthetic) Close() error { return nil }

// offset converts a frame index to a stream offset at the given rate.
func offset(index int, fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(index) / fps * float64(time.Second))
}
