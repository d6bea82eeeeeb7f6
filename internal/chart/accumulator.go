//
//
package chart

import (
	"log/slog"
	"math"
	"sync"

	"github.com/khalid729/grp-stiffness-test-machine/internal/machine"
)

// DefaultThreshold is the minimum deflection change, in mm, between two
// recorded points.
const DefaultThreshold = 0.01

// tolerance absorbs binary rounding so a step of exactly the threshold
// (10.00 to 10.01) counts as a move.
const tolerance = 1e-9

// Point is one sample of the force/deflection curve.
type Point struct {
	Deflection float64 `json:"deflection"` // mm
	Force      float64 `json:"force"`      // kN
}

// Snapshots is the subset of the projector the accumulator listens to.
type Snapshots interface {
	OnChange(fn func(machine.Snapshot)) (unsubscribe func())
}

// Stats counts what the accumulator did with the snapshots it observed.
type Stats struct {
	Points    int
	Appended  uint64
	Discarded uint64
	Resets    uint64
}

// Accumulator owns the sample series of one test.
type Accumulator struct {
	logger    *slog.Logger
	threshold float64

	mu        sync.Mutex
	points    []Point
	appended  uint64
	discarded uint64
	resets    uint64
}

// NewAccumulator creates an empty accumulator. A threshold <= 0 means
// DefaultThreshold; a nil logger means slog.Default().
func NewAccumulator(threshold float64, logger *slog.Logger) *Accumulator {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		logger:    logger.With("component", "chart"),
		threshold: threshold,
	}
}

// Attach feeds every snapshot published by src into Observe.
func (a *Accumulator) Attach(src Snapshots) (detach func()) {
	return src.OnChange(a.Observe)
}

// Observe applies one snapshot to the series.
func (a *Accumulator) Observe(s machine.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch s.Phase {
	case machine.PhaseStarting:
		if len(a.points) > 0 {
			a.logger.Debug("series cleared", "points", len(a.points))
		}
		a.points = nil
		a.resets++

	case machine.PhaseTesting:
		candidate := Point{Deflection: s.Deflection, Force: s.Force}
		if n := len(a.points); n > 0 {
			last := a.points[n-1]
			if math.Abs(candidate.Deflection-last.Deflection) < a.threshold-tolerance {
				a.discarded++
				return
			}
		}
		a.points = append(a.points, candidate)
		a.appended++
	}
}

// Points returns a copy of the series, oldest first.
func (a *Accumulator) Points() []Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Point, len(a.points))
	copy(out, a.points)
	return out
}

// Len returns the number of recorded points.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.points)
}

// Last returns the most recent point.
func (a *Accumulator) Last() (Point, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.points) == 0 {
		return Point{}, false
	}
	return a.points[len(a.points)-1], true
}

// Threshold returns the dedup threshold in effect.
func (a *Accumulator) Threshold() float64 {
	return a.threshold
}

// Stats returns the accumulator counters.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Points:    len(a.points),
		Appended:  a.appended,
		Discarded: a.discarded,
		Resets:    a.resets,
	}
}
