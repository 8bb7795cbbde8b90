package tracker

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/nvr-ai/beachwatch/common"
	"github.com/nvr-ai/beachwatch/video"
)

// Config tunes the IoU tracker. The defaults mirror common DeepSORT settings.
type Config struct {
	// MaxAge is the number of consecutive missed frames after which a confirmed track is deleted.
	MaxAge int `json:"max_age"`
	// NInit is the number of consecutive hits needed to confirm a track.
	NInit int `json:"n_init"`
	// MaxIoUDistance is the largest 1-IoU cost accepted for an association.
	MaxIoUDistance float32 `json:"max_iou_distance"`
}

// DefaultConfig returns max_age=30, n_init=3, max_iou_distance=0.7.
func DefaultConfig() Config {
	return Config{MaxAge: 30, NInit: 3, MaxIoUDistance: 0.7}
}

type trackState int

const (
	tentative trackState = iota
	confirmed
)

// iouTrack is one identity maintained by IOUTracker.
type iouTrack struct {
	id              string
	box             common.BoundingBox
	vx, vy          float32
	hits            int
	timeSinceUpdate int
	state           trackState
}

func (t *iouTrack) TrackID() string { return t.id }
func (t *iouTrack) IsConfirmed() bool { return t.state == confirmed }
func (t *iouTrack) LTRB() [4]float32 {
	return [4]float32{t.box.X1, t.box.Y1, t.box.X2, t.box.Y2}
}

// predicted returns the box shifted by the track's smoothed velocity.
func (t *iouTrack) predicted() common.BoundingBox {
	b := t.box
	b.X1 += t.vx
	b.X2 += t.vx
	b.Y1 += t.vy
	b.Y2 += t.vy
	return b
}

func (t *iouTrack) update(box common.BoundingBox, nInit int) {
	dx := (box.X1 + box.X2 - t.box.X1 - t.box.X2) / 2
	dy := (box.Y1 + box.Y2 - t.box.Y1 - t.box.Y2) / 2
	t.vx = 0.5*t.vx + 0.5*dx
	t.vy = 0.5*t.vy + 0.5*dy
	t.box = box
	t.hits++
	t.timeSinceUpdate = 0
	if t.state == tentative && t.hits >= nInit {
		t.state = confirmed
	}
}

// IOUTracker is a SORT style tracker that associates detections to tracks by
// greedy IoU matching against a constant-velocity prediction.
//
// Tentative tracks are dropped on their first miss. Confirmed tracks survive up
// to MaxAge missed frames. Update returns only tracks matched in the current
// frame, so coasting tracks never inflate per-frame counts.
type IOUTracker struct {
	cfg    Config
	tracks []*iouTrack
	newID  func() string
}

// NewIOUTracker creates a tracker. Zero config fields fall back to DefaultConfig.
func NewIOUTracker(cfg Config) *IOUTracker {
	def := DefaultConfig()
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.NInit <= 0 {
		cfg.NInit = def.NInit
	}
	if cfg.MaxIoUDistance <= 0 || cfg.MaxIoUDistance > 1 {
		cfg.MaxIoUDistance = def.MaxIoUDistance
	}
	return &IOUTracker{cfg: cfg, newID: uuid.NewString}
}

// NewFactory returns a Factory producing independent IOUTrackers.
func NewFactory(cfg Config) Factory {
	return func() (Tracker, error) {
		return NewIOUTracker(cfg), nil
	}
}

type candidate struct {
	track, det int
	cost       float32
}

// Update associates the frame's detections with existing tracks.
//
// Arguments:
//   - ctx: Checked once before association.
//   - inputs: The frame's detections.
//   - frame: The raw frame. The IoU tracker does not use pixels.
//
// Returns:
//   - []Track: Tracks updated in this frame, confirmed or not.
//   - error: The context error if cancelled.
func (tr *IOUTracker) Update(ctx context.Context, inputs []Input, _ video.Frame) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boxes := make([]common.BoundingBox, len(inputs))
	for i, in := range inputs {
		boxes[i] = common.FromXYWH(in.XYWH[0], in.XYWH[1], in.XYWH[2], in.XYWH[3])
		boxes[i].Confidence = in.Confidence
	}

	var candidates []candidate
	for ti, t := range tr.tracks {
		pred := t.predicted()
		for di, b := range boxes {
			cost := 1 - pred.IoU(b)
			if cost <= tr.cfg.MaxIoUDistance {
				candidates = append(candidates, candidate{track: ti, det: di, cost: cost})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].cost < candidates[j].cost
	})

	trackMatched := make([]bool, len(tr.tracks))
	detMatched := make([]bool, len(boxes))
	for _, c := range candidates {
		if trackMatched[c.track] || detMatched[c.det] {
			continue
		}
		trackMatched[c.track] = true
		detMatched[c.det] = true
		tr.tracks[c.track].update(boxes[c.det], tr.cfg.NInit)
	}

	alive := tr.tracks[:0]
	for i, t := range tr.tracks {
		if !trackMatched[i] {
			t.timeSinceUpdate++
			if t.state == tentative || t.timeSinceUpdate > tr.cfg.MaxAge {
				continue
			}
		}
		alive = append(alive, t)
	}
	tr.tracks = alive

	for di, b := range boxes {
		if detMatched[di] {
			continue
		}
		t := &iouTrack{id: tr.newID(), box: b, hits: 1}
		if tr.cfg.NInit <= 1 {
			t.state = confirmed
		}
		tr.tracks = append(tr.tracks, t)
	}

	current := make([]*iouTrack, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		if t.timeSinceUpdate == 0 {
			current = append(current, t)
		}
	}
	return Normalize(current), nil
}

// Len returns the number of live tracks, including coasting ones.
func (tr *IOUTracker) Len() int {
	return len(tr.tracks)
}
