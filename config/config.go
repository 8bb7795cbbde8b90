// Package config - Environment configuration for the beachwatch service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/beachwatch/inference/providers"
	"github.com/pkg/errors"
)

// ServiceName is attached to every log entry.
const ServiceName = "beachwatch"

// Count modes select which per-session count is reported upstream.
const (
	CountModeAvg  = "avg"
	CountModeLast = "last"
)

// Detector backends.
const (
	BackendONNXRuntime = "onnxruntime"
	BackendOpenCV      = "opencv"
)

// Config is the service configuration.
type Config struct {
	Report struct {
		BackendURL string
		Timeout    time.Duration
		// CountMode is CountModeAvg or CountModeLast.
		CountMode string
	}

	Schedule struct {
		// Interval is the pause between analysis cycles.
		Interval time.Duration
		// Spacing is the pause between two sources within a cycle.
		Spacing time.Duration
		// RetainState keeps each source's tracker, ledger and cooldowns across cycles.
		RetainState bool
		// Parallel analyses sources concurrently.
		Parallel bool
		// Simulate replaces camera analysis with generated counts.
		Simulate bool
	}

	Sources  []Source
	VideoDir string

	Detector struct {
		Backend    string
		ModelPath  string
		LibPath    string
		Provider   providers.Backend
		Confidence float64
		IoU        float64
		InputSize  int
	}

	Fall struct {
		RatioThreshold float64
		MaxHeightRatio float64
		Cooldown       time.Duration
		// StreamClock times cooldowns on frame timestamps instead of the wall clock.
		StreamClock bool
	}

	Sampling struct {
		FrameBudget int
		FrameStride int
	}

	Congestion struct {
		LowMax  int
		HighMin int
	}

	Tracker struct {
		MaxAge         int
		NInit          int
		MaxIoUDistance float64
	}

	Redis struct {
		Addr     string
		Password string
		Stream   string
	}

	History struct {
		DB   string
		Keep int
	}

	MetricsAddr string

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through lookup, which returns "" for unset
// keys. Malformed values are reported together in one error.
//
// Arguments:
//   - lookup: The environment lookup, usually os.Getenv.
//
// Returns:
//   - *Config: The loaded configuration, not yet validated.
//   - error: An error listing every malformed variable.
func LoadFrom(lookup func(string) string) (*Config, error) {
	e := env{lookup: lookup}
	cfg := &Config{}

	cfg.Report.BackendURL = strings.TrimRight(e.str("BACKEND_URL", "http://localhost:8080"), "/")
	cfg.Report.Timeout = e.seconds("REPORT_TIMEOUT", 10)
	cfg.Report.CountMode = strings.ToLower(e.str("REPORT_COUNT_MODE", CountModeAvg))

	cfg.Schedule.Interval = e.seconds("ANALYSIS_INTERVAL", 30)
	cfg.Schedule.Spacing = e.seconds("SOURCE_SPACING", 2)
	cfg.Schedule.RetainState = e.boolean("RETAIN_STATE", false)
	cfg.Schedule.Parallel = e.boolean("PARALLEL_SOURCES", false)
	cfg.Schedule.Simulate = e.boolean("SIMULATE", false)

	wd, _ := os.Getwd()
	cfg.VideoDir = e.str("VIDEO_DIR", wd)
	sources, err := SelectSources(cfg.VideoDir, e.str("SOURCES", ""), lookup)
	if err != nil {
		e.errs = append(e.errs, err.Error())
	}
	cfg.Sources = sources

	cfg.Detector.Backend = strings.ToLower(e.str("DETECTOR_BACKEND", BackendONNXRuntime))
	cfg.Detector.ModelPath = e.str("YOLO_WEIGHTS", "./yolov8n.onnx")
	cfg.Detector.LibPath = e.str("ONNXRUNTIME_LIB", "")
	provider, err := providers.ParseBackend(e.str("ONNX_PROVIDER", "cpu"))
	if err != nil {
		e.errs = append(e.errs, "ONNX_PROVIDER: "+err.Error())
	}
	cfg.Detector.Provider = provider
	cfg.Detector.Confidence = e.float("YOLO_CONF", 0.35)
	cfg.Detector.IoU = e.float("YOLO_IOU", 0.5)
	cfg.Detector.InputSize = e.integer("YOLO_IMGSZ", 640)

	cfg.Fall.RatioThreshold = e.float("FALL_RATIO", 1.8)
	cfg.Fall.MaxHeightRatio = e.float("FALL_MAX_HEIGHT_RATIO", 0.35)
	cfg.Fall.Cooldown = e.seconds("FALL_COOLDOWN", 5)
	cfg.Fall.StreamClock = strings.ToLower(e.str("COOLDOWN_CLOCK", "wall")) == "stream"

	cfg.Sampling.FrameBudget = e.integer("FRAME_BUDGET", 100)
	cfg.Sampling.FrameStride = e.integer("FRAME_STRIDE", 1)

	cfg.Congestion.LowMax = e.integer("CONGESTION_LOW_MAX", 5)
	cfg.Congestion.HighMin = e.integer("CONGESTION_HIGH_MIN", 15)

	cfg.Tracker.MaxAge = e.integer("TRACKER_MAX_AGE", 30)
	cfg.Tracker.NInit = e.integer("TRACKER_N_INIT", 3)
	cfg.Tracker.MaxIoUDistance = e.float("TRACKER_MAX_IOU_DISTANCE", 0.7)

	cfg.Redis.Addr = e.str("REDIS_ADDR", "")
	cfg.Redis.Password = e.str("REDIS_PASSWORD", "")
	cfg.Redis.Stream = e.str("REDIS_STREAM", "beachwatch:detections")

	cfg.History.DB = e.str("HISTORY_DB", "")
	cfg.History.Keep = e.integer("HISTORY_KEEP", 10)

	cfg.MetricsAddr = e.str("METRICS_ADDR", "")

	cfg.Log.Level = e.str("LOG_LEVEL", "info")
	cfg.Log.Format = e.str("LOG_FORMAT", "json")

	if len(e.errs) > 0 {
		return cfg, errors.Errorf("invalid environment: %s", strings.Join(e.errs, "; "))
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Schedule.Interval > 0, "ANALYSIS_INTERVAL must be positive")
	check(c.Schedule.Spacing >= 0, "SOURCE_SPACING must not be negative")
	check(c.Report.Timeout > 0, "REPORT_TIMEOUT must be positive")
	check(c.Report.CountMode == CountModeAvg || c.Report.CountMode == CountModeLast,
		"REPORT_COUNT_MODE must be avg or last")
	check(c.Report.BackendURL != "", "BACKEND_URL must be set")
	check(len(c.Sources) > 0, "at least one source is required")

	check(c.Detector.Backend == BackendONNXRuntime || c.Detector.Backend == BackendOpenCV,
		"DETECTOR_BACKEND must be onnxruntime or opencv")
	check(c.Detector.Confidence >= 0 && c.Detector.Confidence <= 1, "YOLO_CONF must be within [0, 1]")
	check(c.Detector.IoU > 0 && c.Detector.IoU <= 1, "YOLO_IOU must be within (0, 1]")
	check(c.Detector.InputSize > 0 && c.Detector.InputSize%32 == 0, "YOLO_IMGSZ must be a positive multiple of 32")

	check(c.Fall.RatioThreshold > 0, "FALL_RATIO must be positive")
	check(c.Fall.MaxHeightRatio > 0 && c.Fall.MaxHeightRatio <= 1, "FALL_MAX_HEIGHT_RATIO must be within (0, 1]")
	check(c.Fall.Cooldown > 0, "FALL_COOLDOWN must be positive")

	check(c.Sampling.FrameBudget > 0, "FRAME_BUDGET must be positive")
	check(c.Sampling.FrameStride > 0, "FRAME_STRIDE must be positive")

	check(c.Congestion.LowMax >= 0, "CONGESTION_LOW_MAX must not be negative")
	check(c.Congestion.LowMax <= c.Congestion.HighMin, "CONGESTION_LOW_MAX must not exceed CONGESTION_HIGH_MIN")

	check(c.Tracker.MaxAge > 0, "TRACKER_MAX_AGE must be positive")
	check(c.Tracker.NInit > 0, "TRACKER_N_INIT must be positive")
	check(c.Tracker.MaxIoUDistance > 0 && c.Tracker.MaxIoUDistance <= 1, "TRACKER_MAX_IOU_DISTANCE must be within (0, 1]")

	check(c.History.Keep > 0, "HISTORY_KEEP must be positive")

	if len(problems) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

type env struct {
	lookup func(string) string
	errs   []string
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.lookup(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, key+": expected an integer, got "+strconv.Quote(v))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, key+": expected a number, got "+strconv.Quote(v))
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, key+": expected a boolean, got "+strconv.Quote(v))
		return def
	}
	return b
}

// seconds reads a duration given in (possibly fractional) seconds. Values with
// a unit suffix such as "1m30s" are parsed with time.ParseDuration.
func (e *env) seconds(key string, def float64) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return time.Duration(def * float64(time.Second))
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, key+": expected seconds or a duration, got "+strconv.Quote(v))
		return time.Duration(def * float64(time.Second))
	}
	return d
}
