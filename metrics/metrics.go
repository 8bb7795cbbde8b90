// Package metrics - Prometheus metrics for analysis sessions, reporting and
// cycles, exported from a private registry.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "beachwatch"

// Metrics holds all application metrics.
type Metrics struct {
	// Cycles and Analyses back the analysis counter logged after every cycle.
	Cycles   atomic.Uint64
	Analyses atomic.Uint64

	frames       *prometheus.CounterVec
	fallAlerts   *prometheus.CounterVec
	visible      *prometheus.GaugeVec
	fallen       *prometheus.GaugeVec
	frameLatency *prometheus.HistogramVec
	reports      *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec
	mirrorErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames analysed, by source and outcome.",
		}, []string{"source", "outcome"}),
		fallAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fall_alerts_total",
			Help:      "Fall alerts emitted.",
		}, []string{"source"}),
		visible: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "visible_persons",
			Help:      "Confirmed persons visible in the last analysed frame.",
		}, []string{"source"}),
		fallen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fallen_persons",
			Help:      "Confirmed persons judged fallen in the last analysed frame.",
		}, []string{"source"}),
		frameLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_seconds",
			Help:      "Detection, tracking and fall analysis time per frame.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"source"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Collector reports, by outcome.",
		}, []string{"source", "outcome"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Source analyses that ended in an error.",
		}, []string{"source"}),
		mirrorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_errors_total",
			Help:      "Failed deliveries to Redis or history mirrors.",
		}, []string{"mirror", "source"}),
	}

	m.registry.MustRegister(
		m.frames, m.fallAlerts, m.visible, m.fallen, m.frameLatency, m.reports, m.sourceErrors, m.mirrorErrors,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed analysis cycles.",
		}, func() float64 { return float64(m.Cycles.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Source analyses completed across all cycles.",
		}, func() float64 { return float64(m.Analyses.Load()) }),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveFrame records one analysed frame.
func (m *Metrics) ObserveFrame(source string, visible, fallen int, failed bool, elapsed time.Duration) {
	if failed {
		m.frames.WithLabelValues(source, "failed").Inc()
	} else {
		m.frames.WithLabelValues(source, "ok").Inc()
	}
	m.visible.WithLabelValues(source).Set(float64(visible))
	m.fallen.WithLabelValues(source).Set(float64(fallen))
	m.frameLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveFallAlert records an emitted fall alert.
func (m *Metrics) ObserveFallAlert(source string) {
	m.fallAlerts.WithLabelValues(source).Inc()
}

// ObserveReport records a report delivery outcome.
func (m *Metrics) ObserveReport(source string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.reports.WithLabelValues(source, outcome).Inc()
}

// ObserveSourceError records a failed source analysis.
func (m *Metrics) ObserveSourceError(source string) {
	m.sourceErrors.WithLabelValues(source).Inc()
}

// ObserveMirrorError records a failed delivery to a secondary sink. It
// matches report.Fanout.OnMirrorError.
func (m *Metrics) ObserveMirrorError(mirror, source string, _ error) {
	m.mirrorErrors.WithLabelValues(mirror, source).Inc()
}

// ObserveCycle records a completed cycle over sources sources.
func (m *Metrics) ObserveCycle(sources int) {
	m.Cycles.Add(1)
	m.Analyses.Add(uint64(sources))
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
//
// Arguments:
//   - ctx: Cancelling it shuts the server down.
//   - addr: The listen address, e.g. ":9090".
//   - logger: The logger.
//
// Returns:
//   - error: The listen error, or nil after a clean shutdown.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "error serving metrics")
	}
	<-done
	return nil
}
