// Package simulate - Generated beach counts for running without cameras or a
// model. Counts follow the time of day and each beach's usual crowd level.
package simulate

import (
	"math/rand"
	"sync"
	"time"
)

// Counts is one simulated observation.
type Counts struct {
	Persons int
	Fallen  int
}

// band is an inclusive person range for an inclusive hour range.
type band struct {
	fromHour, toHour int
	min, max         int
}

var bands = []band{
	{fromHour: 6, toHour: 9, min: 5, max: 15},
	{fromHour: 10, toHour: 16, min: 20, max: 50},
	{fromHour: 17, toHour: 20, min: 15, max: 35},
}

// night applies outside every band.
var night = band{min: 0, max: 10}

// Scales are per-slug crowd multipliers. Beaches not listed use 1.
var Scales = map[string]float64{
	"hamduck":      1.2,
	"walljeonglee": 0.8,
}

const (
	jitter    = 5
	maxFallen = 3
	// fallenPer is the number of persons per possible fallen person.
	fallenPer = 20
)

// Generator produces simulated counts. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New creates a generator seeded with seed.
func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), now: time.Now}
}

// WithClock replaces the clock used to pick the time-of-day band.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate returns counts for a beach at the current time.
//
// Arguments:
//   - slug: The beach short name, e.g. "hamduck".
//
// Returns:
//   - Counts: Persons is never negative. Fallen is within [0, min(3, Persons/20)].
func (g *Generator) Generate(slug string) Counts {
	return g.GenerateAt(slug, g.now())
}

// GenerateAt returns counts for a beach at the given time.
func (g *Generator) GenerateAt(slug string, at time.Time) Counts {
	b := bandFor(at.Hour())

	g.mu.Lock()
	defer g.mu.Unlock()

	base := b.min + g.rng.Intn(b.max-b.min+1)
	if scale, ok := Scales[slug]; ok {
		base = int(float64(base) * scale)
	}
	persons := max(0, base+g.rng.Intn(2*jitter+1)-jitter)
	fallen := g.rng.Intn(min(maxFallen, persons/fallenPer) + 1)
	return Counts{Persons: persons, Fallen: fallen}
}

func bandFor(hour int) band {
	for _, b := range bands {
		if hour >= b.fromHour && hour <= b.toHour {
			return b
		}
	}
	return night
}

// Range returns the inclusive person range a beach can produce at hour,
// after scaling and jitter.
func Range(slug string, hour int) (lo, hi int) {
	b := bandFor(hour)
	lo, hi = b.min, b.max
	if scale, ok := Scales[slug]; ok {
		lo, hi = int(float64(lo)*scale), int(float64(hi)*scale)
	}
	return max(0, lo-jitter), hi + jitter
}
