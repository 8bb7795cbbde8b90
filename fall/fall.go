// Package fall - Geometric person-down heuristic over tracked bounding boxes.
//
// A standing person's box is taller than it is wide. A person lying on the sand
// produces a box that is wider than tall and short relative to the frame. The
// height term keeps wide boxes of people close to the camera from being flagged.
package fall

import (
	"github.com/nvr-ai/beachwatch/common"
)

const (
	// DefaultRatioThreshold is the minimum width/height ratio for a fallen verdict.
	DefaultRatioThreshold = 1.8
	// DefaultMaxHeightRatio is the maximum box-height/frame-height ratio for a fallen verdict.
	DefaultMaxHeightRatio = 0.35
)

// Config holds the heuristic thresholds.
type Config struct {
	RatioThreshold float64 `json:"ratio_threshold"`
	MaxHeightRatio float64 `json:"max_height_ratio"`
}

// DefaultConfig returns the thresholds used by the beach cameras.
func DefaultConfig() Config {
	return Config{
		RatioThreshold: DefaultRatioThreshold,
		MaxHeightRatio: DefaultMaxHeightRatio,
	}
}

// Verdict is the outcome of classifying one box.
type Verdict struct {
	AspectRatio float64 `json:"aspect_ratio"`
	Fallen      bool    `json:"fallen"`
}

// Classify computes the aspect ratio of an LTRB box and decides whether it
// depicts a fallen person.
//
// Width and height are clamped to at least one pixel, as is the frame height.
//
// Arguments:
//   - l, t, r, b: The box edges in pixels.
//   - frameHeight: The frame height in pixels.
//
// Returns:
//   - Verdict: The aspect ratio and fallen flag.
//
// @example
// v := fall.DefaultConfig().Classify(0, 0, 100, 40, 300)
// // v.AspectRatio == 2.5, v.Fallen == true
func (c Config) Classify(l, t, r, b, frameHeight int) Verdict {
	w := max(1, r-l)
	h := max(1, b-t)
	aspect := float64(w) / float64(h)
	heightRatio := float64(h) / float64(max(1, frameHeight))

	return Verdict{
		AspectRatio: aspect,
		Fallen:      aspect >= c.RatioThreshold && heightRatio <= c.MaxHeightRatio,
	}
}

// ClassifyBox is Classify for a common.BoundingBox, truncating to whole pixels
// the same way boxes are drawn.
func (c Config) ClassifyBox(box common.BoundingBox, frameHeight int) Verdict {
	return c.Classify(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2), frameHeight)
}
