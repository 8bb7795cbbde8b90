package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/beachwatch/inference/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(map[string]string{"VIDEO_DIR": "/videos"}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8080", cfg.Report.BackendURL)
	assert.Equal(t, 10*time.Second, cfg.Report.Timeout)
	assert.Equal(t, CountModeAvg, cfg.Report.CountMode)
	assert.Equal(t, 30*time.Second, cfg.Schedule.Interval)
	assert.Equal(t, 2*time.Second, cfg.Schedule.Spacing)
	assert.False(t, cfg.Schedule.RetainState)
	assert.False(t, cfg.Schedule.Parallel)
	assert.False(t, cfg.Schedule.Simulate)

	assert.Equal(t, BackendONNXRuntime, cfg.Detector.Backend)
	assert.Equal(t, "./yolov8n.onnx", cfg.Detector.ModelPath)
	assert.Equal(t, providers.CPUBackend, cfg.Detector.Provider)
	assert.Equal(t, 0.35, cfg.Detector.Confidence)
	assert.Equal(t, 0.5, cfg.Detector.IoU)
	assert.Equal(t, 640, cfg.Detector.InputSize)

	assert.Equal(t, 1.8, cfg.Fall.RatioThreshold)
	assert.Equal(t, 0.35, cfg.Fall.MaxHeightRatio)
	assert.Equal(t, 5*time.Second, cfg.Fall.Cooldown)
	assert.False(t, cfg.Fall.StreamClock)

	assert.Equal(t, 100, cfg.Sampling.FrameBudget)
	assert.Equal(t, 1, cfg.Sampling.FrameStride)
	assert.Equal(t, 5, cfg.Congestion.LowMax)
	assert.Equal(t, 15, cfg.Congestion.HighMin)
	assert.Equal(t, 30, cfg.Tracker.MaxAge)
	assert.Equal(t, 3, cfg.Tracker.NInit)
	assert.Equal(t, 0.7, cfg.Tracker.MaxIoUDistance)

	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "beachwatch:detections", cfg.Redis.Stream)
	assert.Empty(t, cfg.History.DB)
	assert.Equal(t, 10, cfg.History.Keep)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "hamduck_camera_01", cfg.Sources[0].ID)
	assert.Equal(t, "Hamduck Beach", cfg.Sources[0].Name)
	assert.Equal(t, filepath.Join("/videos", "hamduck_beach.mp4"), cfg.Sources[0].Locator)
	assert.Equal(t, "walljeonglee_camera_01", cfg.Sources[2].ID)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(map[string]string{
		"BACKEND_URL":       "http://collector:9000/",
		"ANALYSIS_INTERVAL": "1.5",
		"SOURCE_SPACING":    "500ms",
		"REPORT_COUNT_MODE": "LAST",
		"RETAIN_STATE":      "true",
		"PARALLEL_SOURCES":  "1",
		"ONNX_PROVIDER":     "cuda",
		"COOLDOWN_CLOCK":    "stream",
		"SOURCES":           "iho, hamduck",
		"SOURCE_IHO_URL":    "rtsp://iho.local/live",
		"HISTORY_KEEP":      "25",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://collector:9000", cfg.Report.BackendURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Schedule.Interval)
	assert.Equal(t, 500*time.Millisecond, cfg.Schedule.Spacing)
	assert.Equal(t, CountModeLast, cfg.Report.CountMode)
	assert.True(t, cfg.Schedule.RetainState)
	assert.True(t, cfg.Schedule.Parallel)
	assert.Equal(t, providers.CUDABackend, cfg.Detector.Provider)
	assert.True(t, cfg.Fall.StreamClock)
	assert.Equal(t, 25, cfg.History.Keep)

	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "iho_camera_01", cfg.Sources[0].ID)
	assert.Equal(t, "rtsp://iho.local/live", cfg.Sources[0].Locator)
	assert.Equal(t, "hamduck", cfg.Sources[1].Slug)
}

func TestLoadMalformed(t *testing.T) {
	_, err := LoadFrom(lookupMap(map[string]string{
		"FRAME_BUDGET":  "lots",
		"YOLO_CONF":     "high",
		"SIMULATE":      "maybe",
		"FALL_COOLDOWN": "soon",
		"SOURCES":       "atlantis",
		"ONNX_PROVIDER": "tpu",
	}))
	require.Error(t, err)
	for _, key := range []string{"FRAME_BUDGET", "YOLO_CONF", "SIMULATE", "FALL_COOLDOWN", "atlantis", "ONNX_PROVIDER"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "zero interval", mutate: func(c *Config) { c.Schedule.Interval = 0 }},
		{name: "zero budget", mutate: func(c *Config) { c.Sampling.FrameBudget = 0 }},
		{name: "negative stride", mutate: func(c *Config) { c.Sampling.FrameStride = -1 }},
		{name: "confidence above one", mutate: func(c *Config) { c.Detector.Confidence = 1.5 }},
		{name: "odd input size", mutate: func(c *Config) { c.Detector.InputSize = 600 }},
		{name: "inverted congestion", mutate: func(c *Config) { c.Congestion.LowMax = 20 }},
		{name: "unknown count mode", mutate: func(c *Config) { c.Report.CountMode = "median" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Detector.Backend = "tensorrt" }},
		{name: "height ratio above one", mutate: func(c *Config) { c.Fall.MaxHeightRatio = 2 }},
		{name: "no sources", mutate: func(c *Config) { c.Sources = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(lookupMap(nil))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SIMULATE", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Schedule.Simulate)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestCatalog(t *testing.T) {
	assert.Equal(t, []string{"hamduck", "iho", "walljeonglee"}, Slugs())
	assert.Equal(t, "함덕해변", DisplayName("hamduck"))
	assert.Equal(t, "월정리해변", DisplayName("walljeonglee"))
	assert.Equal(t, "unknown", DisplayName("unknown"))

	for name, slug := range map[string]string{
		"hamduck": "hamduck", "함덕": "hamduck", "이호해변": "iho",
		"Walljeonglee Beach": "walljeonglee", "월정리": "walljeonglee", "Sehwa": "sehwa",
	} {
		assert.Equal(t, slug, ResolveSlug(name), name)
	}

	sources, err := SelectSources("/v", "", nil)
	require.NoError(t, err)
	assert.Len(t, sources, 3)

	_, err = SelectSources("/v", "hamduck,gwangalli", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source "gwangalli"`)
}
