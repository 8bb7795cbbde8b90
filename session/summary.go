package session

import (
	"time"

	"github.com/nvr-ai/beachwatch/congestion"
)

// Summary is the result of one session run over a source.
type Summary struct {
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`

	// LastVisible and LastFallen are the counts of the final processed frame.
	LastVisible int `json:"last_visible_count"`
	LastFallen  int `json:"last_fallen_count"`
	// AvgVisible and AvgFallen are integer-truncated means over processed frames.
	AvgVisible int `json:"avg_visible_count"`
	AvgFallen  int `json:"avg_fallen_count"`

	// Unique is the number of distinct confirmed identities seen.
	Unique int `json:"unique_person_count"`
	// FallAlerts is the number of fall alerts that passed the cooldown.
	FallAlerts int `json:"total_fall_alerts"`

	// Congestion is the tier of LastVisible; AvgCongestion the tier of AvgVisible.
	Congestion    congestion.Tier `json:"congestion"`
	AvgCongestion congestion.Tier `json:"avg_congestion"`

	Processed   int `json:"processed_frames"`
	Failed      int `json:"failed_frames"`
	TotalFrames int `json:"total_frames"`
	Stride      int `json:"stride"`
}
