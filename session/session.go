// Package session - Per-source analysis session: samples frames, runs the
// detector and tracker, classifies falls, accounts identities and summarises.
package session

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/beachwatch/congestion"
	"github.com/nvr-ai/beachwatch/detector"
	"github.com/nvr-ai/beachwatch/fall"
	"github.com/nvr-ai/beachwatch/ledger"
	"github.com/nvr-ai/beachwatch/tracker"
	"github.com/nvr-ai/beachwatch/video"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrAllFramesFailed is returned alongside the summary when every sampled
// frame failed detection or tracking.
var ErrAllFramesFailed = errors.New("all sampled frames failed")

const (
	// DefaultProgressEvery is the processed-frame interval between progress logs.
	DefaultProgressEvery = 10
	// maxReadErrors bounds consecutive undecodable frames before a run gives up.
	maxReadErrors = 30
)

// Options configure a Session.
type Options struct {
	// Source is the source id reported upstream, e.g. "hamduck_camera_01".
	Source string `json:"source"`
	// Name is the human readable source name.
	Name string `json:"name"`
	// FrameBudget caps the processed frames per Run.
	FrameBudget int `json:"frame_budget"`
	// FixedStride is the stride used when the source frame count is unknown.
	FixedStride int `json:"fixed_stride"`
	// Detect is passed to the detector on every frame.
	Detect detector.Options `json:"detect"`
	// Fall configures the fallen-person heuristic.
	Fall fall.Config `json:"fall"`
	// Cooldown is the minimum time between two fall alerts for one identity.
	Cooldown time.Duration `json:"cooldown"`
	// Congestion holds the tier thresholds.
	Congestion congestion.Thresholds `json:"congestion"`
	// StreamClock uses frame timestamps instead of the wall clock for cooldowns.
	StreamClock bool `json:"stream_clock"`
	// ProgressEvery is the processed-frame interval between progress logs.
	ProgressEvery int `json:"progress_every"`
}

// DefaultOptions returns the beach camera defaults.
func DefaultOptions() Options {
	return Options{
		FrameBudget:   video.DefaultFrameBudget,
		FixedStride:   1,
		Detect:        detector.DefaultOptions(),
		Fall:          fall.DefaultConfig(),
		Cooldown:      ledger.DefaultCooldown,
		Congestion:    congestion.DefaultThresholds(),
		ProgressEvery: DefaultProgressEvery,
	}
}

// Stats are the running counters of a session.
type Stats struct {
	LastVisible int `json:"last_visible_count"`
	LastFallen  int `json:"last_fallen_count"`
	Unique      int `json:"unique_person_count"`
	FallAlerts  int `json:"total_fall_alerts"`
}

// FrameResult is the outcome of one processed frame.
type FrameResult struct {
	Visible int
	Fallen  int
	// Alerts holds the ids that raised a fall alert on this frame.
	Alerts []string
}

// Recorder receives per-frame observations, typically for metrics.
type Recorder interface {
	ObserveFrame(source string, visible, fallen int, failed bool, elapsed time.Duration)
	ObserveFallAlert(source string)
}

// Session owns the per-source state: tracker, identity ledger, alert cooldown
// table and running stats. It is not safe for concurrent use.
type Session struct {
	opts     Options
	detector detector.Detector
	tracker  tracker.Tracker
	ledger   *ledger.Ledger
	cooldown *ledger.Cooldown
	stats    Stats

	log      *zap.Logger
	now      func() time.Time
	recorder Recorder
}

// New creates a session. A nil logger disables logging.
//
// Arguments:
//   - opts: The session options. Zero fields take DefaultOptions values.
//   - det: The detector port.
//   - trk: A tracker dedicated to this session's source.
//   - log: The logger.
//
// Returns:
//   - *Session: The session.
func New(opts Options, det detector.Detector, trk tracker.Tracker, log *zap.Logger) *Session {
	def := DefaultOptions()
	if opts.FrameBudget <= 0 {
		opts.FrameBudget = def.FrameBudget
	}
	if opts.FixedStride <= 0 {
		opts.FixedStride = def.FixedStride
	}
	if opts.Fall == (fall.Config{}) {
		opts.Fall = def.Fall
	}
	if opts.Congestion == (congestion.Thresholds{}) {
		opts.Congestion = def.Congestion
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = def.ProgressEvery
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		opts:     opts,
		detector: det,
		tracker:  trk,
		ledger:   ledger.New(),
		cooldown: ledger.NewCooldown(opts.Cooldown),
		log:      log.With(zap.String("source", opts.Source)),
		now:      time.Now,
	}
}

// WithClock replaces the wall clock used for cooldowns and summary timestamps.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// WithRecorder attaches a Recorder.
func (s *Session) WithRecorder(r Recorder) *Session {
	s.recorder = r
	return s
}

// Options returns the effective options.
func (s *Session) Options() Options { return s.opts }

// Stats returns a copy of the running counters.
func (s *Session) Stats() Stats { return s.stats }

// ProcessFrame runs detection, tracking, fall classification, identity
// accounting and alert de-duplication for one frame.
//
// On failure the last visible and fallen counts are reset to zero and the
// error is returned; the ledger and cooldown table are left untouched.
//
// Arguments:
//   - ctx: Passed to the detector and tracker.
//   - frame: The frame to analyse.
//
// Returns:
//   - FrameResult: Visible and fallen counts and the ids that raised an alert.
//   - error: The detector or tracker error.
func (s *Session) ProcessFrame(ctx context.Context, frame video.Frame) (FrameResult, error) {
	start := time.Now()
	res, err := s.processFrame(ctx, frame)
	if s.recorder != nil {
		s.recorder.ObserveFrame(s.opts.Source, res.Visible, res.Fallen, err != nil, time.Since(start))
	}
	return res, err
}

func (s *Session) processFrame(ctx context.Context, frame video.Frame) (FrameResult, error) {
	dets, err := s.detector.Detect(ctx, frame, s.opts.Detect)
	if err != nil {
		s.stats.LastVisible, s.stats.LastFallen = 0, 0
		return FrameResult{}, errors.Wrapf(err, "detection failed on frame %d", frame.Index)
	}

	tracks, err := s.tracker.Update(ctx, tracker.FromDetections(dets), frame)
	if err != nil {
		s.stats.LastVisible, s.stats.LastFallen = 0, 0
		return FrameResult{}, errors.Wrapf(err, "tracking failed on frame %d", frame.Index)
	}

	height := frame.Height
	if height <= 0 && frame.Image != nil {
		height = frame.Image.Bounds().Dy()
	}
	now := s.now()
	if s.opts.StreamClock && !frame.Timestamp.IsZero() {
		now = frame.Timestamp
	}

	var res FrameResult
	for _, t := range tracks {
		if !t.Confirmed {
			continue
		}
		s.ledger.Observe(t.ID)
		res.Visible++

		verdict := s.opts.Fall.ClassifyBox(t.Box, height)
		if !verdict.Fallen {
			continue
		}
		res.Fallen++
		if s.cooldown.Alert(t.ID, now) {
			res.Alerts = append(res.Alerts, t.ID)
			s.log.Info("fall detected",
				zap.String("track_id", t.ID),
				zap.Int("frame", frame.Index),
				zap.Float64("aspect_ratio", verdict.AspectRatio),
			)
			if s.recorder != nil {
				s.recorder.ObserveFallAlert(s.opts.Source)
			}
		}
	}

	s.stats.LastVisible = res.Visible
	s.stats.LastFallen = res.Fallen
	s.stats.Unique = s.ledger.Count()
	s.stats.FallAlerts = s.cooldown.Total()
	return res, nil
}

// Run drives the sampled loop over src until the source is exhausted or the
// frame budget is spent, then returns the summary.
//
// A source without frames yields an all-zero summary and no error. If every
// processed frame failed, the summary is returned with ErrAllFramesFailed. If
// ctx is cancelled the partial summary is returned with the context error.
//
// Arguments:
//   - ctx: Cancels the run between frames.
//   - src: The frame source. Run does not close it.
//
// Returns:
//   - Summary: The session summary.
//   - error: ErrAllFramesFailed, a context error, or nil.
func (s *Session) Run(ctx context.Context, src video.Source) (Summary, error) {
	total := src.FrameCount()
	sampler := video.NewSampler(total, s.opts.FrameBudget, s.opts.FixedStride)
	skipper, canSkip := src.(video.Skipper)

	acc := accumulator{total: total, stride: sampler.Stride()}
	s.log.Debug("session started",
		zap.Int("total_frames", total),
		zap.Int("stride", sampler.Stride()),
		zap.Int("budget", sampler.Budget()),
	)

	readErrors := 0
	for index := 0; !sampler.Done(); index++ {
		eligible := sampler.Eligible(index)

		if !eligible && canSkip {
			if err := skipper.Skip(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return s.summarize(acc), err
			}
			continue
		}

		frame, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return s.summarize(acc), ctx.Err()
			}
			readErrors++
			s.log.Warn("frame read failed", zap.Int("frame", index), zap.Error(err))
			if readErrors >= maxReadErrors {
				s.log.Warn("too many unreadable frames, ending session early", zap.Int("frame", index))
				break
			}
			if eligible {
				sampler.Mark()
				acc.add(FrameResult{}, true)
				s.stats.LastVisible, s.stats.LastFallen = 0, 0
			}
			continue
		}
		readErrors = 0
		if !eligible {
			continue
		}

		sampler.Mark()
		res, err := s.ProcessFrame(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return s.summarize(acc), ctx.Err()
			}
			s.log.Warn("frame skipped", zap.Int("frame", index), zap.Error(err))
		}
		acc.add(res, err != nil)

		if acc.processed%s.opts.ProgressEvery == 0 {
			fields := []zap.Field{
				zap.Int("processed", acc.processed),
				zap.Int("frame", index),
				zap.Int("visible", res.Visible),
				zap.Int("fallen", res.Fallen),
			}
			if total > 0 {
				fields = append(fields, zap.Float64("progress_pct", float64(index+1)*100/float64(total)))
			}
			s.log.Debug("session progress", fields...)
		}
	}

	summary := s.summarize(acc)
	s.log.Info("session finished",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("avg_visible", summary.AvgVisible),
		zap.Int("avg_fallen", summary.AvgFallen),
		zap.Int("unique", summary.Unique),
		zap.Stringer("congestion", summary.Congestion),
	)
	if acc.processed > 0 && acc.failed == acc.processed {
		return summary, ErrAllFramesFailed
	}
	return summary, nil
}

// Empty returns the summary reported for a source that could not be analysed:
// every count is zero and the cumulative counters reflect retained state.
func (s *Session) Empty() Summary {
	return s.summarize(accumulator{})
}

type accumulator struct {
	total, stride     int
	processed, failed int
	sumVisible        int
	sumFallen         int
}

func (a *accumulator) add(res FrameResult, failed bool) {
	a.processed++
	if failed {
		a.failed++
	}
	a.sumVisible += res.Visible
	a.sumFallen += res.Fallen
}

func (s *Session) summarize(acc accumulator) Summary {
	sum := Summary{
		SessionID:   uuid.NewString(),
		Source:      s.opts.Source,
		Name:        s.opts.Name,
		Timestamp:   s.now(),
		LastVisible: s.stats.LastVisible,
		LastFallen:  s.stats.LastFallen,
		Unique:      s.ledger.Count(),
		FallAlerts:  s.cooldown.Total(),
		Processed:   acc.processed,
		Failed:      acc.failed,
		TotalFrames: acc.total,
		Stride:      acc.stride,
	}
	if acc.processed == 0 {
		sum.LastVisible, sum.LastFallen = 0, 0
	} else {
		sum.AvgVisible = acc.sumVisible / acc.processed
		sum.AvgFallen = acc.sumFallen / acc.processed
	}
	sum.Congestion = s.opts.Congestion.Classify(sum.LastVisible)
	sum.AvgCongestion = s.opts.Congestion.Classify(sum.AvgVisible)
	return sum
}
