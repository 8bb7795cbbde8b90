package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nvr-ai/beachwatch/common"
	"github.com/nvr-ai/beachwatch/config"
	"github.com/nvr-ai/beachwatch/congestion"
	"github.com/nvr-ai/beachwatch/detector"
	"github.com/nvr-ai/beachwatch/report"
	"github.com/nvr-ai/beachwatch/session"
	"github.com/nvr-ai/beachwatch/simulate"
	"github.com/nvr-ai/beachwatch/tracker"
	"github.com/nvr-ai/beachwatch/video"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSink records every report and optionally fails.
type MockSink struct {
	mu          sync.Mutex
	records     []report.Record
	shouldError bool
	onSend      func(n int)
}

func (m *MockSink) Send(_ context.Context, rec report.Record) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	n := len(m.records)
	m.mu.Unlock()
	if m.onSend != nil {
		m.onSend(n)
	}
	if m.shouldError {
		return errors.New("mock sink error")
	}
	return nil
}

func (m *MockSink) Records() []report.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]report.Record(nil), m.records...)
}

// MockDetector returns no detections; the mock tracker supplies the tracks.
type MockDetector struct {
	shouldError bool
	closed      bool
}

func (m *MockDetector) Detect(context.Context, video.Frame, detector.Options) ([]detector.Detection, error) {
	if m.shouldError {
		return nil, errors.New("mock detection error")
	}
	return nil, nil
}

func (m *MockDetector) Close() error {
	m.closed = true
	return nil
}

// MockTracker returns tracks computed from its call count.
type MockTracker struct {
	calls  int
	tracks func(call int) []tracker.Track
}

func (m *MockTracker) Update(context.Context, []tracker.Input, video.Frame) ([]tracker.Track, error) {
	m.calls++
	return m.tracks(m.calls), nil
}

// MockRecorder counts controller observations.
type MockRecorder struct {
	mu           sync.Mutex
	frames       int
	alerts       int
	reports      int
	failed       int
	sourceErrors int
	cycles       int
}

func (m *MockRecorder) ObserveFrame(string, int, int, bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
}

func (m *MockRecorder) ObserveFallAlert(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts++
}

func (m *MockRecorder) ObserveReport(_ string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports++
	if err != nil {
		m.failed++
	}
}

func (m *MockRecorder) ObserveSourceError(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sourceErrors++
}

func (m *MockRecorder) ObserveCycle(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
}

func standing(id string) tracker.Track {
	return tracker.Track{ID: id, Box: common.BoundingBox{X1: 0, Y1: 0, X2: 40, Y2: 100}, Confirmed: true}
}

func twoStanding(int) []tracker.Track {
	return []tracker.Track{standing("a"), standing("b")}
}

// newPerFrame gives every frame a new identity.
func newPerFrame(call int) []tracker.Track {
	return []tracker.Track{standing(fmt.Sprintf("p%d", call))}
}

type trackerFactory struct {
	mu     sync.Mutex
	calls  int
	failOn int
	tracks func(int) []tracker.Track
}

func (f *trackerFactory) New() (tracker.Tracker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("mock tracker init error")
	}
	return &MockTracker{tracks: f.tracks}, nil
}

func testSources() []config.Source {
	return config.DefaultSources("/videos")
}

func syntheticOpener(frames int) video.Opener {
	return func(string) (video.Source, error) {
		return video.NewSynthetic(frames, 100, 1000), nil
	}
}

func testOptions() Options {
	return Options{
		Sources:   testSources(),
		Interval:  time.Millisecond,
		CountMode: report.CountModeAvg,
		Session:   session.DefaultOptions(),
	}
}

func newTestController(opts Options, open video.Opener, det detector.Detector, trk *trackerFactory, sink report.Sink) *Controller {
	return New(opts, open, func() (detector.Detector, error) { return det, nil }, trk.New, sink, nil)
}

func TestRunCycleReportsEverySource(t *testing.T) {
	sink := &MockSink{}
	rec := &MockRecorder{}
	c := newTestController(testOptions(), syntheticOpener(10), &MockDetector{}, &trackerFactory{tracks: twoStanding}, sink).
		WithRecorder(rec)

	require.NoError(t, c.RunCycle(context.Background()))

	records := sink.Records()
	require.Len(t, records, 3)
	for i, src := range testSources() {
		assert.Equal(t, src.ID, records[i].Source)
		assert.Equal(t, src.Name, records[i].Name)
		assert.Equal(t, 2, records[i].PersonCount)
		assert.Equal(t, 0, records[i].FallenCount)
		assert.Equal(t, 2, records[i].UniqueCount)
		assert.Equal(t, congestion.Low, records[i].Congestion)
		assert.False(t, records[i].Simulated)
	}

	cycles, analyses := c.Analyses()
	assert.Equal(t, 1, cycles)
	assert.Equal(t, 3, analyses)
	assert.Equal(t, 30, rec.frames)
	assert.Equal(t, 3, rec.reports)
	assert.Equal(t, 1, rec.cycles)
}

func TestUnavailableSourceReportsZero(t *testing.T) {
	sink := &MockSink{}
	open := func(locator string) (video.Source, error) {
		if locator == testSources()[1].Locator {
			return nil, errors.New("no such file")
		}
		return video.NewSynthetic(5, 100, 1000), nil
	}
	c := newTestController(testOptions(), open, &MockDetector{}, &trackerFactory{tracks: twoStanding}, sink)

	require.NoError(t, c.RunCycle(context.Background()))

	records := sink.Records()
	require.Len(t, records, 3)
	assert.Equal(t, 2, records[0].PersonCount)
	assert.Equal(t, "iho_camera_01", records[1].Source)
	assert.Equal(t, 0, records[1].PersonCount)
	assert.Equal(t, 0, records[1].FallenCount)
	assert.Equal(t, congestion.Low, records[1].Congestion)
	assert.Equal(t, 2, records[2].PersonCount)
}

func TestAllFramesFailedStillReported(t *testing.T) {
	sink := &MockSink{}
	rec := &MockRecorder{}
	c := newTestController(testOptions(), syntheticOpener(5), &MockDetector{shouldError: true}, &trackerFactory{tracks: twoStanding}, sink).
		WithRecorder(rec)

	require.NoError(t, c.RunCycle(context.Background()))

	records := sink.Records()
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, 0, r.PersonCount)
	}
	assert.Equal(t, 3, rec.sourceErrors, "a run where every frame failed is a source error")
	assert.Equal(t, 3, rec.reports)
	assert.Equal(t, 0, rec.failed)
}

func TestSourceFailuresAreIsolated(t *testing.T) {
	tests := []struct {
		name    string
		open    video.Opener
		failOn  int
		sources []string
	}{
		{
			name:    "tracker init error",
			open:    syntheticOpener(5),
			failOn:  2,
			sources: []string{"hamduck_camera_01", "walljeonglee_camera_01"},
		},
		{
			name: "panic while opening",
			open: func(locator string) (video.Source, error) {
				if locator == testSources()[0].Locator {
					panic("decoder crashed")
				}
				return video.NewSynthetic(5, 100, 1000), nil
			},
			sources: []string{"iho_camera_01", "walljeonglee_camera_01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &MockSink{}
			rec := &MockRecorder{}
			c := newTestController(testOptions(), tt.open, &MockDetector{}, &trackerFactory{failOn: tt.failOn, tracks: twoStanding}, sink).
				WithRecorder(rec)

			require.NoError(t, c.RunCycle(context.Background()))

			var got []string
			for _, r := range sink.Records() {
				got = append(got, r.Source)
			}
			assert.Equal(t, tt.sources, got)
			assert.Equal(t, 1, rec.sourceErrors)
		})
	}
}

func TestDetectorFactoryError(t *testing.T) {
	sink := &MockSink{}
	calls := 0
	c := New(testOptions(), syntheticOpener(5), func() (detector.Detector, error) {
		calls++
		return nil, errors.New("model not found")
	}, (&trackerFactory{tracks: twoStanding}).New, sink, nil)

	require.NoError(t, c.RunCycle(context.Background()))
	assert.Empty(t, sink.Records())
	assert.Equal(t, 3, calls, "retried per source")
}

func TestReportFailureDoesNotStopCycle(t *testing.T) {
	sink := &MockSink{shouldError: true}
	rec := &MockRecorder{}
	c := newTestController(testOptions(), syntheticOpener(5), &MockDetector{}, &trackerFactory{tracks: twoStanding}, sink).
		WithRecorder(rec)

	require.NoError(t, c.RunCycle(context.Background()))
	assert.Len(t, sink.Records(), 3)
	assert.Equal(t, 3, rec.failed)
	assert.Equal(t, 1, rec.cycles)
}

func TestMirrorFailureDoesNotFailReport(t *testing.T) {
	collector := &MockSink{}
	mirror := &MockSink{shouldError: true}
	var mirrorErrors int
	fanout := report.NewFanout(collector, nil, report.Mirror{Name: "redis", Sink: mirror})
	fanout.OnMirrorError = func(string, string, error) { mirrorErrors++ }

	rec := &MockRecorder{}
	c := newTestController(testOptions(), syntheticOpener(5), &MockDetector{}, &trackerFactory{tracks: twoStanding}, fanout).
		WithRecorder(rec)

	require.NoError(t, c.RunCycle(context.Background()))
	assert.Len(t, collector.Records(), 3)
	assert.Len(t, mirror.Records(), 3)
	assert.Equal(t, 3, rec.reports)
	assert.Equal(t, 0, rec.failed)
	assert.Equal(t, 3, mirrorErrors)
}

func TestRetainState(t *testing.T) {
	tests := []struct {
		name           string
		retain         bool
		expectedUnique int
		expectedInits  int
	}{
		{name: "fresh session per cycle", retain: false, expectedUnique: 10, expectedInits: 6},
		{name: "retained session", retain: true, expectedUnique: 20, expectedInits: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.RetainState = tt.retain
			sink := &MockSink{}
			trk := &trackerFactory{tracks: newPerFrame}
			c := newTestController(opts, syntheticOpener(10), &MockDetector{}, trk, sink)

			ctx := context.Background()
			require.NoError(t, c.RunCycle(ctx))
			require.NoError(t, c.RunCycle(ctx))

			records := sink.Records()
			require.Len(t, records, 6)
			assert.Equal(t, 10, records[0].UniqueCount)
			assert.Equal(t, tt.expectedUnique, records[3].UniqueCount)
			assert.Equal(t, tt.expectedInits, trk.calls)
		})
	}
}

func TestParallelCycle(t *testing.T) {
	opts := testOptions()
	opts.Parallel = true
	opts.Spacing = time.Hour
	sink := &MockSink{}
	c := newTestController(opts, syntheticOpener(20), &MockDetector{}, &trackerFactory{tracks: twoStanding}, sink)

	done := make(chan error, 1)
	go func() { done <- c.RunCycle(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("parallel cycle waited on source spacing")
	}

	var got []string
	for _, r := range sink.Records() {
		got = append(got, r.Source)
		assert.Equal(t, 2, r.PersonCount)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"hamduck_camera_01", "iho_camera_01", "walljeonglee_camera_01"}, got)
}

func TestSourceSpacing(t *testing.T) {
	opts := testOptions()
	opts.Spacing = 20 * time.Millisecond
	c := newTestController(opts, syntheticOpener(1), &MockDetector{}, &trackerFactory{tracks: twoStanding}, &MockSink{})

	start := time.Now()
	require.NoError(t, c.RunCycle(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSimulatedCycle(t *testing.T) {
	noon := time.Date(2026, 8, 15, 12, 0, 0, 0, time.Local)
	gen := simulate.New(11).WithClock(func() time.Time { return noon })
	sink := &MockSink{}
	c := NewSimulated(testOptions(), gen, sink, nil).WithClock(func() time.Time { return noon })

	require.NoError(t, c.RunCycle(context.Background()))

	records := sink.Records()
	require.Len(t, records, 3)
	th := congestion.DefaultThresholds()
	for i, src := range testSources() {
		r := records[i]
		lo, hi := simulate.Range(src.Slug, 12)
		assert.True(t, r.Simulated)
		assert.Equal(t, src.ID, r.Source)
		assert.GreaterOrEqual(t, r.PersonCount, lo)
		assert.LessOrEqual(t, r.PersonCount, hi)
		assert.Equal(t, th.Classify(r.PersonCount), r.Congestion)
		assert.True(t, r.Timestamp.Equal(noon))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &MockSink{}
	sink.onSend = func(n int) {
		if n == 6 {
			cancel()
		}
	}
	rec := &MockRecorder{}
	c := newTestController(testOptions(), syntheticOpener(3), &MockDetector{}, &trackerFactory{tracks: twoStanding}, sink).
		WithRecorder(rec)

	require.NoError(t, c.Run(ctx))

	assert.Len(t, sink.Records(), 6)
	cycles, _ := c.Analyses()
	assert.Equal(t, 1, cycles, "interrupted cycle is not counted")
	assert.Equal(t, 1, rec.cycles)
}

func TestRunCancelledDuringInterval(t *testing.T) {
	opts := testOptions()
	opts.Interval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	sink := &MockSink{}
	sink.onSend = func(n int) {
		if n == 3 {
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
		}
	}
	c := newTestController(opts, syntheticOpener(3), &MockDetector{}, &trackerFactory{tracks: twoStanding}, sink)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop during the interval sleep")
	}
	cycles, analyses := c.Analyses()
	assert.Equal(t, 1, cycles)
	assert.Equal(t, 3, analyses)
}

func TestCloseReleasesDetector(t *testing.T) {
	det := &MockDetector{}
	c := newTestController(testOptions(), syntheticOpener(1), det, &trackerFactory{tracks: twoStanding}, &MockSink{})
	require.NoError(t, c.Close())
	assert.False(t, det.closed, "detector not created yet")

	require.NoError(t, c.RunCycle(context.Background()))
	require.NoError(t, c.Close())
	assert.True(t, det.closed)
}

func TestSleep(t *testing.T) {
	assert.True(t, sleep(context.Background(), 0))
	assert.True(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.False(t, sleep(ctx, 0))
}
