package providers

import "runtime"

// SharedLibPath returns the onnxruntime shared library to load. A non-empty
// override wins; otherwise the platform default under ./third_party is used.
//
// Arguments:
//   - override: An explicit library path, usually from ONNXRUNTIME_LIB.
//
// Returns:
//   - string: The path to the shared library.
func SharedLibPath(override string) string {
	if override != "" {
		return override
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "./third_party/onnxruntime_arm64.so"
	}
	return "./third_party/onnxruntime.so"
}
