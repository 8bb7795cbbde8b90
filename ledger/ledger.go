// Package ledger - Per-session identity accounting and fall alert cooldowns.
//
// Both types are plain per-session values. They are not safe for concurrent use;
// each source session owns its own instances.
package ledger

import (
	"time"
)

// DefaultCooldown is the minimum time between two fall alerts for the same track.
const DefaultCooldown = 5 * time.Second

// Ledger accumulates every track identity seen during a session.
//
// Identities are only ever added, so Count never decreases.
type Ledger struct {
	ids map[string]struct{}
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{ids: make(map[string]struct{})}
}

// Observe records an identity.
//
// Arguments:
//   - id: The opaque track identity.
//
// Returns:
//   - bool: True when the identity had not been seen before.
func (l *Ledger) Observe(id string) bool {
	if _, ok := l.ids[id]; ok {
		return false
	}
	l.ids[id] = struct{}{}
	return true
}

// Contains reports whether the identity has been observed.
func (l *Ledger) Contains(id string) bool {
	_, ok := l.ids[id]
	return ok
}

// Count returns the number of distinct identities observed.
func (l *Ledger) Count() int {
	return len(l.ids)
}

// Cooldown rate-limits fall alerts per track identity.
//
// A record is written only when the identity has no previous alert or the time
// since its last alert is at least the window. Suppressed observations leave the
// stored timestamp untouched.
type Cooldown struct {
	window time.Duration
	last   map[string]time.Time
	total  int
}

// NewCooldown creates a cooldown table. A non-positive window falls back to
// DefaultCooldown.
func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Window returns the configured cooldown window.
func (c *Cooldown) Window() time.Duration {
	return c.window
}

// Alert evaluates a fallen observation for an identity at the given time.
//
// Arguments:
//   - id: The opaque track identity.
//   - now: The observation time.
//
// Returns:
//   - bool: True when a new alert was recorded, false when it was suppressed.
func (c *Cooldown) Alert(id string, now time.Time) bool {
	if last, ok := c.last[id]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[id] = now
	c.total++
	return true
}

// LastAlert returns the timestamp of the last recorded alert for an identity.
func (c *Cooldown) LastAlert(id string) (time.Time, bool) {
	t, ok := c.last[id]
	return t, ok
}

// Total returns the number of alerts recorded since the table was created.
func (c *Cooldown) Total() int {
	return c.total
}
