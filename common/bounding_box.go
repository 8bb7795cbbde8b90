// Package common - Bounding box geometry shared by detectors, trackers and classifiers.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// BoundingBox represents a box in pixel coordinates with its label and confidence.
//
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner, which is the
// same layout trackers call LTRB (left, top, right, bottom).
type BoundingBox struct {
	Label          string
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

// FromXYWH builds a box from a top-left corner plus width and height.
func FromXYWH(x, y, w, h float32) BoundingBox {
	return BoundingBox{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// FromRect builds a box from an image.Rectangle.
func FromRect(r image.Rectangle) BoundingBox {
	r = r.Canon()
	return BoundingBox{
		X1: float32(r.Min.X),
		Y1: float32(r.Min.Y),
		X2: float32(r.Max.X),
		Y2: float32(r.Max.Y),
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// Width returns the horizontal extent of the box, never negative.
func (b BoundingBox) Width() float32 {
	return math32.Max(0, b.X2-b.X1)
}

// Height returns the vertical extent of the box, never negative.
func (b BoundingBox) Height() float32 {
	return math32.Max(0, b.Y2-b.Y1)
}

// Area returns the box area in square pixels.
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// XYWH returns the top-left corner plus width and height.
//
// Returns:
//   - [4]float32: x, y, width, height.
//
// @example
// box := BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 60}
// box.XYWH() // [10 20 100 40]
func (b BoundingBox) XYWH() [4]float32 {
	return [4]float32{b.X1, b.Y1, b.Width(), b.Height()}
}

// ToRect converts the bounding box to an image.Rectangle.
//
// This loses fractional pixels at the edges, which is fine for drawing and
// cropping since the box was already scaled to the source frame.
func (b BoundingBox) ToRect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

// Intersection calculates the overlapping area between two boxes.
//
// Arguments:
//   - other: The other bounding box.
//
// Returns:
//   - The area of intersection in pixels, zero when the boxes do not overlap.
func (b BoundingBox) Intersection(other BoundingBox) float32 {
	w := math32.Min(b.X2, other.X2) - math32.Max(b.X1, other.X1)
	h := math32.Min(b.Y2, other.Y2) - math32.Max(b.Y1, other.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Union calculates the area covered by either box.
func (b BoundingBox) Union(other BoundingBox) float32 {
	return b.Area() + other.Area() - b.Intersection(other)
}

// IoU calculates the Intersection over Union between two bounding boxes.
//
// Used by NMS to drop duplicate detections and by the tracker to associate
// detections with existing tracks.
//
// Arguments:
//   - other: The other bounding box to calculate IoU with.
//
// Returns:
//   - The IoU value between 0 and 1.
//
// @example
// box1 := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
// box2 := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
// iou := box1.IoU(box2) // ~0.143 (2500/17500)
func (b BoundingBox) IoU(other BoundingBox) float32 {
	union := b.Union(other)
	if union <= 0 {
		return 0
	}
	return b.Intersection(other) / union
}
