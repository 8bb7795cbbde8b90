package providers

import (
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID"`
	// The size limit of the device memory arena in bytes. 0 leaves the ORT default.
	GPUMemLimit int64 `json:"gpuMemLimit"`
	// 0: kNextPowerOfTwo, 1: kSameAsRequested.
	ArenaExtendStrategy int `json:"arenaExtendStrategy"`
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT.
	CudnnConvAlgoSearch int `json:"cudnnConvAlgoSearch"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream"`
}

func (o CUDAOptions) toMap() map[string]string {
	m := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"arena_extend_strategy":     pick(arenaStrategies, o.ArenaExtendStrategy),
		"cudnn_conv_algo_search":    pick(convSearches, o.CudnnConvAlgoSearch),
		"do_copy_in_default_stream": strconv.FormatBool(o.DoCopyInDefaultStream),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	return m
}

var (
	arenaStrategies = []string{"kNextPowerOfTwo", "kSameAsRequested"}
	convSearches    = []string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
)

func pick(values []string, i int) string {
	if i < 0 || i >= len(values) {
		return values[0]
	}
	return values[i]
}

func (o CUDAOptions) native() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}
	if err := opts.Update(o.toMap()); err != nil {
		opts.Destroy()
		return nil, err
	}
	return opts, nil
}

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type, e.g. CPU, GPU or NPU.
	DeviceType string `json:"deviceType"`
	// FP32, FP16 or ACCURACY.
	Precision string `json:"precision"`
	// Overrides the accelerator default number of threads.
	NumOfThreads int `json:"numOfThreads"`
}

func (o OpenVINOOptions) toMap() map[string]string {
	m := map[string]string{}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	return m
}
