package inference

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/beachwatch/detector"
	"github.com/nvr-ai/beachwatch/video"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DNNDetector runs a YOLOv8 ONNX model through the OpenCV DNN module. It needs
// no onnxruntime library and serves hosts where only OpenCV is installed.
type DNNDetector struct {
	inputSize  int
	numClasses int

	mu     sync.Mutex
	net    gocv.Net
	closed bool
}

// NewDNNDetector loads the model with gocv.ReadNetFromONNX.
//
// Arguments:
//   - modelPath: The exported YOLOv8 model.
//   - inputSize: The square input size the model was exported with.
//
// Returns:
//   - *DNNDetector: The detector. The caller must Close it.
//   - error: An error if the model could not be read.
func NewDNNDetector(modelPath string, inputSize int) (*DNNDetector, error) {
	if inputSize <= 0 {
		inputSize = detector.DefaultInputSize
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, errors.Errorf("error reading ONNX network from %s", modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &DNNDetector{
		inputSize:  inputSize,
		numClasses: len(detector.YOLOClasses),
		net:        net,
	}, nil
}

// Detect implements detector.Detector.
func (d *DNNDetector) Detect(ctx context.Context, frame video.Frame, opts detector.Options) ([]detector.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Image == nil {
		return nil, errors.Errorf("frame %d has no image data", frame.Index)
	}

	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, errors.Wrap(err, "error converting frame to Mat")
	}
	defer mat.Close()

	size := image.Pt(d.inputSize, d.inputSize)
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector is closed")
	}
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "error reading DNN output")
	}

	b := frame.Image.Bounds()
	opts.InputSize = d.inputSize
	return detector.Decode(detector.YOLOOutput{
		Data:       data,
		Anchors:    AnchorCount(d.inputSize),
		NumClasses: d.numClasses,
	}, b.Dx(), b.Dy(), opts)
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}
