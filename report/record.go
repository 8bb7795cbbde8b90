// Package report - Delivery of per-source detection records to the collector
// backend, Redis streams and local history.
package report

import (
	"context"
	"time"

	"github.com/nvr-ai/beachwatch/congestion"
	"github.com/nvr-ai/beachwatch/session"
)

// Count modes.
const (
	CountModeAvg  = "avg"
	CountModeLast = "last"
)

// Payload is the JSON body accepted by the collector's /api/detections.
type Payload struct {
	PersonCount int    `json:"personCount"`
	FallenCount int    `json:"fallenCount"`
	Source      string `json:"source"`
}

// Record is one detection report for a source.
type Record struct {
	Source      string          `json:"source"`
	Name        string          `json:"name"`
	PersonCount int             `json:"personCount"`
	FallenCount int             `json:"fallenCount"`
	UniqueCount int             `json:"uniqueCount"`
	FallAlerts  int             `json:"fallAlerts"`
	Congestion  congestion.Tier `json:"congestion"`
	Simulated   bool            `json:"simulated"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Payload returns the collector body for the record.
func (r Record) Payload() Payload {
	return Payload{PersonCount: r.PersonCount, FallenCount: r.FallenCount, Source: r.Source}
}

// FromSummary builds a record from a session summary. Mode CountModeLast
// reports the final frame's counts; anything else reports the averages.
//
// Arguments:
//   - sum: The session summary.
//   - mode: CountModeAvg or CountModeLast.
//
// Returns:
//   - Record: The record to send.
func FromSummary(sum session.Summary, mode string) Record {
	r := Record{
		Source:      sum.Source,
		Name:        sum.Name,
		PersonCount: sum.AvgVisible,
		FallenCount: sum.AvgFallen,
		UniqueCount: sum.Unique,
		FallAlerts:  sum.FallAlerts,
		Congestion:  sum.AvgCongestion,
		Timestamp:   sum.Timestamp,
	}
	if mode == CountModeLast {
		r.PersonCount = sum.LastVisible
		r.FallenCount = sum.LastFallen
		r.Congestion = sum.Congestion
	}
	return r
}

// Sink delivers records.
type Sink interface {
	Send(ctx context.Context, rec Record) error
}
