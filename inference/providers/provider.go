// Package providers - ONNX Runtime execution provider selection and shared
// library discovery.
package providers

import (
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Backend represents different ONNX Runtime execution providers.
type Backend string

const (
	// CPUBackend uses the default CPU execution provider.
	CPUBackend Backend = "cpu"
	// CUDABackend uses NVIDIA CUDA for GPU acceleration.
	CUDABackend Backend = "cuda"
	// CoreMLBackend uses Apple CoreML for macOS acceleration.
	CoreMLBackend Backend = "coreml"
	// OpenVINOBackend uses Intel OpenVINO.
	OpenVINOBackend Backend = "openvino"
)

// Backends lists every supported backend.
var Backends = []Backend{CPUBackend, CUDABackend, CoreMLBackend, OpenVINOBackend}

// ParseBackend converts a configuration string into a Backend. An empty string
// selects the CPU backend.
//
// Arguments:
//   - s: The backend name, case-insensitive.
//
// Returns:
//   - Backend: The parsed backend.
//   - error: An error if the backend is not supported.
func ParseBackend(s string) (Backend, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CPUBackend, nil
	}
	for _, b := range Backends {
		if string(b) == s {
			return b, nil
		}
	}
	return "", errors.Errorf("unsupported execution provider %q", s)
}

// Config selects an execution provider and the thread settings applied to
// the session options.
type Config struct {
	Backend Backend `json:"backend"`
	// IntraOpThreads parallelises work inside a single node. 0 lets ORT decide.
	IntraOpThreads int `json:"intra_op_threads"`
	// InterOpThreads parallelises independent nodes. 0 lets ORT decide.
	InterOpThreads int `json:"inter_op_threads"`

	CUDA     CUDAOptions     `json:"cuda"`
	OpenVINO OpenVINOOptions `json:"openvino"`
	// CoreMLFlags is passed through to the CoreML provider.
	CoreMLFlags uint32 `json:"coreml_flags"`
}

// DefaultConfig returns a CPU configuration with ORT-chosen thread counts.
func DefaultConfig() Config {
	return Config{Backend: CPUBackend}
}

// SessionOptions builds ORT session options for the configured backend. The
// caller owns the returned options and must Destroy them.
//
// Returns:
//   - *ort.SessionOptions: The session options.
//   - error: An error if the options or the execution provider could not be set.
func (c Config) SessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := c.apply(options); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func (c Config) apply(options *ort.SessionOptions) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	switch c.Backend {
	case CPUBackend, "":
		return nil
	case CUDABackend:
		cuda, err := c.CUDA.native()
		if err != nil {
			return errors.Wrap(err, "error converting CUDA options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	case CoreMLBackend:
		if err := options.AppendExecutionProviderCoreML(c.CoreMLFlags); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.OpenVINO.toMap()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	default:
		return errors.Errorf("unsupported execution provider %q", c.Backend)
	}
	return nil
}
