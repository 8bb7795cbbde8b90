// Package controller - Continuous analysis cycles across beach sources. Each
// cycle analyses every source, reports the result and sleeps until the next one.
package controller

import (
	"context"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/beachwatch/config"
	"github.com/nvr-ai/beachwatch/congestion"
	"github.com/nvr-ai/beachwatch/detector"
	"github.com/nvr-ai/beachwatch/report"
	"github.com/nvr-ai/beachwatch/session"
	"github.com/nvr-ai/beachwatch/simulate"
	"github.com/nvr-ai/beachwatch/tracker"
	"github.com/nvr-ai/beachwatch/video"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultReportTimeout bounds a single report delivery.
const DefaultReportTimeout = 10 * time.Second

// Recorder receives controller level observations in addition to the
// per-frame ones.
type Recorder interface {
	session.Recorder
	ObserveReport(source string, err error)
	ObserveSourceError(source string)
	ObserveCycle(sources int)
}

// Options configure a Controller.
type Options struct {
	Sources []config.Source
	// Interval is the pause between cycles.
	Interval time.Duration
	// Spacing is the pause between two sources within a sequential cycle.
	Spacing time.Duration
	// RetainState keeps each source's session across cycles.
	RetainState bool
	// Parallel analyses all sources of a cycle concurrently.
	Parallel bool
	// CountMode is report.CountModeAvg or report.CountModeLast.
	CountMode     string
	ReportTimeout time.Duration
	// Session is the template for per-source sessions; Source and Name are
	// filled in per source.
	Session session.Options
}

// Controller drives analysis cycles. The detector is created once and shared
// by all sources; every source gets its own tracker and session.
type Controller struct {
	opts      Options
	open      video.Opener
	detectors detector.Factory
	trackers  tracker.Factory
	sink      report.Sink
	sim       *simulate.Generator
	recorder  Recorder
	log       *zap.Logger
	now       func() time.Time

	detMu    sync.Mutex
	detector detector.Detector

	mu       sync.Mutex
	sessions map[string]*session.Session
	cycles   int
	analyses int
}

// New creates a controller that analyses camera sources.
//
// Arguments:
//   - opts: The controller options.
//   - open: Opens a source locator.
//   - detectors: Creates the shared detector on first use.
//   - trackers: Creates one tracker per session.
//   - sink: Receives one record per source and cycle.
//   - log: The logger. Nil disables logging.
//
// Returns:
//   - *Controller: The controller.
func New(opts Options, open video.Opener, detectors detector.Factory, trackers tracker.Factory, sink report.Sink, log *zap.Logger) *Controller {
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = DefaultReportTimeout
	}
	if opts.CountMode == "" {
		opts.CountMode = report.CountModeAvg
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		opts:      opts,
		open:      open,
		detectors: detectors,
		trackers:  trackers,
		sink:      sink,
		log:       log,
		now:       time.Now,
		sessions:  make(map[string]*session.Session),
	}
}

// NewSimulated creates a controller that reports generated counts instead of
// analysing video.
func NewSimulated(opts Options, gen *simulate.Generator, sink report.Sink, log *zap.Logger) *Controller {
	c := New(opts, nil, nil, nil, sink, log)
	c.sim = gen
	return c
}

// WithRecorder attaches a Recorder to the controller and its sessions.
func (c *Controller) WithRecorder(r Recorder) *Controller {
	c.recorder = r
	return c
}

// WithClock replaces the wall clock.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Analyses returns the number of cycles run and sources analysed so far.
func (c *Controller) Analyses() (cycles, sources int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles, c.analyses
}

// Run executes cycles until ctx is cancelled. The sleep between cycles ends
// early on cancellation.
//
// Arguments:
//   - ctx: Cancelling it stops the controller.
//
// Returns:
//   - error: nil after a cancellation, otherwise the error that ended the loop.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("continuous analysis started",
		zap.Int("sources", len(c.opts.Sources)),
		zap.Duration("interval", c.opts.Interval),
		zap.Bool("parallel", c.opts.Parallel),
		zap.Bool("retain_state", c.opts.RetainState),
		zap.Bool("simulate", c.sim != nil),
	)

	for {
		if err := c.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		if !sleep(ctx, c.opts.Interval) {
			break
		}
	}

	cycles, analyses := c.Analyses()
	c.log.Info("continuous analysis stopped", zap.Int("cycles", cycles), zap.Int("analyses", analyses))
	return nil
}

// RunCycle analyses and reports every source once. Per-source failures are
// logged and do not end the cycle; only cancellation does.
func (c *Controller) RunCycle(ctx context.Context) error {
	start := c.now()
	c.log.Info("analysis cycle started", zap.Int("sources", len(c.opts.Sources)))

	var err error
	if c.opts.Parallel {
		err = c.runParallel(ctx)
	} else {
		err = c.runSequential(ctx)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cycles++
	c.analyses += len(c.opts.Sources)
	cycles, analyses := c.cycles, c.analyses
	c.mu.Unlock()
	if c.recorder != nil {
		c.recorder.ObserveCycle(len(c.opts.Sources))
	}

	c.log.Info("analysis cycle completed",
		zap.Int("cycle", cycles),
		zap.Int("total_analyses", analyses),
		zap.Duration("elapsed", c.now().Sub(start)),
	)
	return nil
}

func (c *Controller) runSequential(ctx context.Context) error {
	for i, src := range c.opts.Sources {
		if i > 0 && !sleep(ctx, c.opts.Spacing) {
			return ctx.Err()
		}
		c.analyze(ctx, src)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) runParallel(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range c.opts.Sources {
		g.Go(func() error {
			c.analyze(gctx, src)
			return gctx.Err()
		})
	}
	return g.Wait()
}

// analyze runs one source and reports it. Panics are recovered and logged.
func (c *Controller) analyze(ctx context.Context, src config.Source) {
	log := c.log.With(zap.String("source", src.ID), zap.String("name", src.Name))

	rec, err := c.safeAnalyze(ctx, src, log)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("source analysis interrupted", zap.Error(err))
			return
		}
		log.Error("source analysis failed", zap.Error(err))
		if c.recorder != nil {
			c.recorder.ObserveSourceError(src.ID)
		}
		return
	}

	reportCtx, cancel := context.WithTimeout(ctx, c.opts.ReportTimeout)
	defer cancel()
	err = c.sink.Send(reportCtx, rec)
	if c.recorder != nil {
		c.recorder.ObserveReport(src.ID, err)
	}
	if err != nil {
		log.Warn("report failed", zap.Error(err))
		return
	}
	log.Info("source analysed",
		zap.Int("person_count", rec.PersonCount),
		zap.Int("fallen_count", rec.FallenCount),
		zap.Int("unique_count", rec.UniqueCount),
		zap.Stringer("congestion", rec.Congestion),
		zap.Bool("simulated", rec.Simulated),
	)
}

func (c *Controller) safeAnalyze(ctx context.Context, src config.Source, log *zap.Logger) (rec report.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during source analysis", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = errors.Errorf("panic analysing %s: %v", src.ID, r)
		}
	}()

	if c.sim != nil {
		return c.simulated(src), nil
	}

	sess, err := c.session(src)
	if err != nil {
		return rec, err
	}

	summary, err := c.runSession(ctx, sess, src, log)
	if err != nil {
		return rec, err
	}
	return report.FromSummary(summary, c.opts.CountMode), nil
}

func (c *Controller) runSession(ctx context.Context, sess *session.Session, src config.Source, log *zap.Logger) (session.Summary, error) {
	source, err := c.open(src.Locator)
	if err != nil {
		log.Warn("source unavailable, reporting zero counts", zap.String("locator", src.Locator), zap.Error(err))
		return sess.Empty(), nil
	}
	defer closeSource(source, log)

	summary, err := sess.Run(ctx, source)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrAllFramesFailed):
		log.Warn("every sampled frame failed", zap.Int("frames", summary.Processed))
		if c.recorder != nil {
			c.recorder.ObserveSourceError(src.ID)
		}
	default:
		return summary, errors.Wrapf(err, "error analysing %s", src.ID)
	}
	return summary, nil
}

func closeSource(src io.Closer, log *zap.Logger) {
	if err := src.Close(); err != nil {
		log.Warn("error closing source", zap.Error(err))
	}
}

// session returns the retained session for src or a fresh one.
func (c *Controller) session(src config.Source) (*session.Session, error) {
	if c.opts.RetainState {
		c.mu.Lock()
		sess, ok := c.sessions[src.ID]
		c.mu.Unlock()
		if ok {
			return sess, nil
		}
	}

	det, err := c.sharedDetector()
	if err != nil {
		return nil, err
	}
	trk, err := c.trackers()
	if err != nil {
		return nil, errors.Wrapf(err, "error creating tracker for %s", src.ID)
	}

	opts := c.opts.Session
	opts.Source = src.ID
	opts.Name = src.Name
	sess := session.New(opts, det, trk, c.log).WithClock(c.now)
	if c.recorder != nil {
		sess.WithRecorder(c.recorder)
	}

	if c.opts.RetainState {
		c.mu.Lock()
		c.sessions[src.ID] = sess
		c.mu.Unlock()
	}
	return sess, nil
}

func (c *Controller) sharedDetector() (detector.Detector, error) {
	c.detMu.Lock()
	defer c.detMu.Unlock()
	if c.detector != nil {
		return c.detector, nil
	}
	det, err := c.detectors()
	if err != nil {
		return nil, errors.Wrap(err, "error creating detector")
	}
	c.detector = det
	return det, nil
}

func (c *Controller) simulated(src config.Source) report.Record {
	counts := c.sim.Generate(src.Slug)
	th := c.opts.Session.Congestion
	if th == (congestion.Thresholds{}) {
		th = session.DefaultOptions().Congestion
	}
	tier := th.Classify(counts.Persons)
	summary := session.Summary{
		SessionID:     uuid.NewString(),
		Source:        src.ID,
		Name:          src.Name,
		Timestamp:     c.now(),
		LastVisible:   counts.Persons,
		LastFallen:    counts.Fallen,
		AvgVisible:    counts.Persons,
		AvgFallen:     counts.Fallen,
		Congestion:    tier,
		AvgCongestion: tier,
	}
	rec := report.FromSummary(summary, c.opts.CountMode)
	rec.Simulated = true
	return rec
}

// Close releases the shared detector if it holds resources.
func (c *Controller) Close() error {
	c.detMu.Lock()
	defer c.detMu.Unlock()
	if closer, ok := c.detector.(io.Closer); ok {
		c.detector = nil
		return closer.Close()
	}
	return nil
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
