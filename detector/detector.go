// Package detector - Person detector contract and YOLO output post-processing.
//
// The Detector interface is the port the analysis session depends on. Concrete
// model runtimes (see package inference) implement it; tests script it.
package detector

import (
	"context"

	"github.com/nvr-ai/beachwatch/common"
	"github.com/nvr-ai/beachwatch/video"
)

// PersonClass is the COCO class index of "person" in YOLO models.
const PersonClass = 0

const (
	// DefaultConfidenceThreshold drops detections scoring below it.
	DefaultConfidenceThreshold = 0.35
	// DefaultIoUThreshold is the overlap above which NMS suppresses a box.
	DefaultIoUThreshold = 0.5
	// DefaultInputSize is the square inference resolution.
	DefaultInputSize = 640
)

// Detection is a single detected object in one frame.
type Detection struct {
	Box        common.BoundingBox
	Confidence float32
	Class      int
}

// Options are passed with every Detect call.
type Options struct {
	// Classes restricts results to these class indices. Empty means all classes.
	Classes []int `json:"classes"`
	// ConfidenceThreshold filters detections below this confidence.
	ConfidenceThreshold float32 `json:"confidence_threshold"`
	// IoUThreshold controls duplicate suppression inside the detector.
	IoUThreshold float32 `json:"iou_threshold"`
	// InputSize is the inference resolution in pixels (square).
	InputSize int `json:"input_size"`
}

// DefaultOptions returns person-only options with the beach camera thresholds.
func DefaultOptions() Options {
	return Options{
		Classes:             []int{PersonClass},
		ConfidenceThreshold: DefaultConfidenceThreshold,
		IoUThreshold:        DefaultIoUThreshold,
		InputSize:           DefaultInputSize,
	}
}

// Allows reports whether a class index passes the class filter.
func (o Options) Allows(class int) bool {
	if len(o.Classes) == 0 {
		return true
	}
	for _, c := range o.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Detector finds objects in a frame.
//
// Implementations must already apply the confidence threshold and class filter;
// callers do not re-filter.
type Detector interface {
	Detect(ctx context.Context, frame video.Frame, opts Options) ([]Detection, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, frame video.Frame, opts Options) ([]Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, frame video.Frame, opts Options) ([]Detection, error) {
	return f(ctx, frame, opts)
}

// Factory creates a Detector. Factories are called lazily so a missing model
// only fails the sources that need it.
type Factory func() (Detector, error)
