package detector

import (
	"sort"

	"github.com/nvr-ai/beachwatch/common"
	"github.com/pkg/errors"
)

// YOLOOutput describes a YOLOv8 style output tensor laid out as
// [4+classes][anchors]: rows 0-3 hold cx, cy, w, h in input pixels and the
// remaining rows hold per-class scores.
type YOLOOutput struct {
	Data       []float32
	Anchors    int
	NumClasses int
}

// Decode converts raw model output into detections in frame coordinates.
//
// Boxes are scaled back from the square input to the frame size, filtered by
// class and confidence, then passed through greedy NMS.
//
// Arguments:
//   - out: The raw output tensor.
//   - frameWidth, frameHeight: The original frame dimensions.
//   - opts: The detection options (input size, thresholds, class filter).
//
// Returns:
//   - []Detection: Detections sorted by descending confidence.
//   - error: An error if the tensor is smaller than its declared shape.
func Decode(out YOLOOutput, frameWidth, frameHeight int, opts Options) ([]Detection, error) {
	rows := 4 + out.NumClasses
	if len(out.Data) < rows*out.Anchors {
		return nil, errors.Errorf("output tensor holds %d floats, needs %d (%d rows x %d anchors)",
			len(out.Data), rows*out.Anchors, rows, out.Anchors)
	}

	size := float32(opts.InputSize)
	if size <= 0 {
		size = DefaultInputSize
	}
	sx := float32(frameWidth) / size
	sy := float32(frameHeight) / size

	detections := make([]Detection, 0, 64)
	for idx := 0; idx < out.Anchors; idx++ {
		classID := -1
		probability := float32(-1e9)
		for col := 0; col < out.NumClasses; col++ {
			p := out.Data[out.Anchors*(col+4)+idx]
			if p > probability {
				probability = p
				classID = col
			}
		}

		if probability < opts.ConfidenceThreshold || !opts.Allows(classID) {
			continue
		}

		xc, yc := out.Data[idx], out.Data[out.Anchors+idx]
		w, h := out.Data[2*out.Anchors+idx], out.Data[3*out.Anchors+idx]

		detections = append(detections, Detection{
			Box: common.BoundingBox{
				Confidence: probability,
				X1:         (xc - w/2) * sx,
				Y1:         (yc - h/2) * sy,
				X2:         (xc + w/2) * sx,
				Y2:         (yc + h/2) * sy,
			},
			Confidence: probability,
			Class:      classID,
		})
	}

	return NMS(detections, opts.IoUThreshold), nil
}

// NMS performs class-aware greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: The candidate detections, in any order.
//   - iouThreshold: IoU above which the lower scoring box of a pair is dropped.
//
// Returns:
//   - Filtered detections sorted by descending confidence.
func NMS(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return nil
	}

	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Detection, 0, len(sorted))
	used := make([]bool, len(sorted))
	for i := range sorted {
		if used[i] {
			continue
		}
		anchor := sorted[i]
		kept = append(kept, anchor)
		used[i] = true

		for j := i + 1; j < len(sorted); j++ {
			if used[j] || sorted[j].Class != anchor.Class {
				continue
			}
			if anchor.Box.IoU(sorted[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}
	return kept
}
