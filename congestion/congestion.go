// Package congestion - Maps visible person counts to crowd density tiers.
package congestion

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Tier is an ordered crowd density level.
type Tier int

const (
	// Low means fewer people than the low threshold.
	Low Tier = iota
	// Medium means at least the low threshold but below the high threshold.
	Medium
	// High means at least the high threshold.
	High
)

const (
	// DefaultLowMax is the first count that is no longer LOW.
	DefaultLowMax = 5
	// DefaultHighMin is the first count that is HIGH.
	DefaultHighMin = 15
)

func (t Tier) String() string {
	switch t {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// MarshalText encodes the tier by name so summaries serialise readably.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name. Names are case-insensitive.
func (t *Tier) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "LOW":
		*t = Low
	case "MEDIUM":
		*t = Medium
	case "HIGH":
		*t = High
	default:
		return errors.Errorf("unknown congestion tier %q", text)
	}
	return nil
}

// Thresholds configures the tier boundaries as [LowMax, HighMin).
type Thresholds struct {
	LowMax  int `json:"low_max"`
	HighMin int `json:"high_min"`
}

// DefaultThresholds returns the 5/15 split used for the beaches.
func DefaultThresholds() Thresholds {
	return Thresholds{LowMax: DefaultLowMax, HighMin: DefaultHighMin}
}

// Validate checks that the thresholds are ordered and non-negative.
func (th Thresholds) Validate() error {
	if th.LowMax < 0 || th.HighMin < 0 {
		return errors.Errorf("congestion thresholds must be non-negative: low_max=%d high_min=%d", th.LowMax, th.HighMin)
	}
	if th.LowMax > th.HighMin {
		return errors.Errorf("congestion low_max %d exceeds high_min %d", th.LowMax, th.HighMin)
	}
	return nil
}

// Classify returns the tier for a visible person count.
//
// Arguments:
//   - count: The instantaneous number of visible people. Negative counts are treated as zero.
//
// Returns:
//   - Tier: The density tier.
//
// @example
// th := congestion.DefaultThresholds()
// th.Classify(4)  // Low
// th.Classify(14) // Medium
// th.Classify(15) // High
func (th Thresholds) Classify(count int) Tier {
	switch {
	case count < th.LowMax:
		return Low
	case count < th.HighMin:
		return Medium
	default:
		return High
	}
}
