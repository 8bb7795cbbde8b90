package inference

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/beachwatch/detector"
	"github.com/nvr-ai/beachwatch/inference/providers"
	"github.com/nvr-ai/beachwatch/video"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// YOLOConfig configures a YOLODetector.
type YOLOConfig struct {
	// ModelPath is the exported YOLOv8 ONNX model.
	ModelPath string `json:"model_path"`
	// LibPath is the onnxruntime shared library. Empty selects the platform default.
	LibPath string `json:"lib_path"`
	// InputSize is the square model input size the model was exported with.
	InputSize int `json:"input_size"`
	// NumClasses is the number of class score rows in the output tensor.
	NumClasses int `json:"num_classes"`
	// Provider selects the execution provider.
	Provider providers.Config `json:"provider"`
}

// DefaultYOLOConfig returns a COCO YOLOv8 configuration at 640 on CPU.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:  "./yolov8n.onnx",
		InputSize:  detector.DefaultInputSize,
		NumClasses: len(detector.YOLOClasses),
		Provider:   providers.DefaultConfig(),
	}
}

// YOLODetector runs a YOLOv8 ONNX model and implements detector.Detector.
type YOLODetector struct {
	cfg     YOLOConfig
	anchors int

	mu      sync.Mutex
	session *Session
}

// NewYOLODetector initialises ORT and loads the model.
//
// Arguments:
//   - cfg: The detector configuration.
//
// Returns:
//   - *YOLODetector: The detector. The caller must Close it.
//   - error: An error if ORT or the model could not be loaded.
//
// @example
// det, err := NewYOLODetector(DefaultYOLOConfig())
//
//	if err != nil {
//		return err
//	}
//
// defer det.Close()
func NewYOLODetector(cfg YOLOConfig) (*YOLODetector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = detector.DefaultInputSize
	}
	if cfg.NumClasses <= 0 {
		cfg.NumClasses = len(detector.YOLOClasses)
	}

	if err := InitEnvironment(cfg.LibPath); err != nil {
		return nil, err
	}

	size := int64(cfg.InputSize)
	anchors := AnchorCount(cfg.InputSize)
	session, err := NewSession(SessionConfig{
		ModelPath:   cfg.ModelPath,
		InputShape:  ort.NewShape(1, 3, size, size),
		OutputShape: ort.NewShape(1, int64(4+cfg.NumClasses), int64(anchors)),
		Provider:    cfg.Provider,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error loading YOLO model")
	}

	return &YOLODetector{cfg: cfg, anchors: anchors, session: session}, nil
}

// Detect runs the model on one frame.
//
// The session was built for a fixed input size, so opts.InputSize is replaced
// by the model's size before decoding.
//
// Arguments:
//   - ctx: Checked before inference.
//   - frame: The frame; its Image must be set.
//   - opts: Class filter and thresholds.
//
// Returns:
//   - []detector.Detection: Filtered detections in frame coordinates.
//   - error: An error if the frame has no pixels or inference fails.
func (d *YOLODetector) Detect(ctx context.Context, frame video.Frame, opts detector.Options) ([]detector.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Image == nil {
		return nil, errors.Errorf("frame %d has no image data", frame.Index)
	}

	width, height := frame.Width, frame.Height
	if width <= 0 || height <= 0 {
		b := frame.Image.Bounds()
		width, height = b.Dx(), b.Dy()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector is closed")
	}
	if err := PrepareInput(frame.Image, d.cfg.InputSize, d.session.Input()); err != nil {
		return nil, errors.Wrap(err, "error preparing input")
	}
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrapf(err, "error running inference on frame %d", frame.Index)
	}

	opts.InputSize = d.cfg.InputSize
	return detector.Decode(detector.YOLOOutput{
		Data:       d.session.Output(),
		Anchors:    d.anchors,
		NumClasses: d.cfg.NumClasses,
	}, width, height, opts)
}

// WarmUp runs inference on a blank frame to populate runtime caches.
//
// Arguments:
//   - runs: The number of times to run inference.
//
// Returns:
//   - error: An error if any warmup run fails.
func (d *YOLODetector) WarmUp(ctx context.Context, runs int) error {
	blank := image.NewRGBA(image.Rect(0, 0, d.cfg.InputSize, d.cfg.InputSize))
	frame := video.Frame{Image: blank, Width: d.cfg.InputSize, Height: d.cfg.InputSize}
	for i := 0; i < runs; i++ {
		if _, err := d.Detect(ctx, frame, detector.DefaultOptions()); err != nil {
			return errors.Wrap(err, "warmup failed")
		}
	}
	return nil
}

// Close releases the ORT session.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}
