// Package tracker - Multi-object tracker contract, output normalisation and a
// default IoU association tracker.
package tracker

import (
	"context"

	"github.com/nvr-ai/beachwatch/common"
	"github.com/nvr-ai/beachwatch/detector"
	"github.com/nvr-ai/beachwatch/video"
)

// Input is one detection in the shape trackers consume: a top-left anchored
// box with width and height, the detector confidence and the class index.
type Input struct {
	XYWH       [4]float32
	Confidence float32
	Class      int
}

// FromDetections converts detector output into tracker input.
func FromDetections(dets []detector.Detection) []Input {
	inputs := make([]Input, len(dets))
	for i, d := range dets {
		inputs[i] = Input{
			XYWH:       d.Box.XYWH(),
			Confidence: d.Confidence,
			Class:      d.Class,
		}
	}
	return inputs
}

// Track is a tracked identity as seen by the analysis session.
//
// ID is opaque. Callers must not assume it is numeric, small or increasing.
type Track struct {
	ID        string
	Box       common.BoundingBox
	Confirmed bool
}

// RawTrack is the surface exposed by tracker implementations for their
// internal track objects.
type RawTrack interface {
	TrackID() string
	IsConfirmed() bool
	// LTRB returns left, top, right, bottom in pixels.
	LTRB() [4]float32
}

// Normalize converts implementation track objects into Track values.
func Normalize[T RawTrack](raw []T) []Track {
	tracks := make([]Track, 0, len(raw))
	for _, r := range raw {
		ltrb := r.LTRB()
		tracks = append(tracks, Track{
			ID:        r.TrackID(),
			Box:       common.BoundingBox{X1: ltrb[0], Y1: ltrb[1], X2: ltrb[2], Y2: ltrb[3]},
			Confirmed: r.IsConfirmed(),
		})
	}
	return tracks
}

// Tracker associates per-frame detections with persistent identities.
//
// A Tracker is stateful and must be used by exactly one video source. Track
// identities are only meaningful within that source's stream.
type Tracker interface {
	Update(ctx context.Context, inputs []Input, frame video.Frame) ([]Track, error)
}

// Factory creates a fresh Tracker for one source.
type Factory func() (Tracker, error)
