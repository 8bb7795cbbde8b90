// Package inference - ONNX Runtime sessions and the YOLO person detector.
package inference

import (
	"os"
	"sync"

	"github.com/nvr-ai/beachwatch/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// InputName is the input node name of exported YOLOv8 models.
	InputName = "images"
	// OutputName is the output node name of exported YOLOv8 models.
	OutputName = "output0"
)

var envMu sync.Mutex

// InitEnvironment points ORT at the shared library and initialises the
// process-wide environment. It is safe to call more than once.
//
// Arguments:
//   - libPath: The onnxruntime shared library. Empty selects the platform default.
//
// Returns:
//   - error: An error if the library is missing or the environment fails to start.
func InitEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	libPath = providers.SharedLibPath(libPath)
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// SessionConfig describes a single-input single-output float32 model.
type SessionConfig struct {
	ModelPath   string
	InputShape  ort.Shape
	OutputShape ort.Shape
	Provider    providers.Config
}

// Session is an ORT session with preallocated input and output tensors.
//
// Run is not safe for concurrent use because the tensors are shared.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewSession loads the model and binds tensors of the configured shapes.
// InitEnvironment must have been called first.
//
// Arguments:
//   - cfg: The model path, tensor shapes and execution provider.
//
// Returns:
//   - *Session: The session. The caller must Close it.
//   - error: An error if the model or the tensors could not be created.
func NewSession(cfg SessionConfig) (*Session, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model not found at %s", cfg.ModelPath)
	}

	input, err := ort.NewEmptyTensor[float32](cfg.InputShape)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](cfg.OutputShape)
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := cfg.Provider.SessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{InputName},
		[]string{OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", cfg.ModelPath)
	}

	return &Session{session: session, input: input, output: output}, nil
}

// Input returns the writable input buffer.
func (s *Session) Input() []float32 {
	return s.input.GetData()
}

// Output returns the output buffer filled by the last Run.
func (s *Session) Output() []float32 {
	return s.output.GetData()
}

// Run executes the model on the current input buffer.
func (s *Session) Run() error {
	if s.session == nil {
		return errors.New("session is closed")
	}
	return s.session.Run()
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}
