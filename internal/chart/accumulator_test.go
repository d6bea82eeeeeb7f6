package chart

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/khalid729/grp-stiffness-test-machine/internal/fanout"
	"github.com/khalid729/grp-stiffness-test-machine/internal/machine"
	"github.com/khalid729/grp-stiffness-test-machine/internal/telemetry"
)

func snap(phase machine.Phase, deflection, force float64) machine.Snapshot {
	return machine.Snapshot{
		Phase:      phase,
		StatusCode: phase.Code(),
		Deflection: deflection,
		Force:      force,
	}
}

func TestDedupDiscardsSmallMoves(t *testing.T) {
	a := NewAccumulator(0, nil)
	a.Observe(snap(machine.PhaseTesting, 10.000, 1))
	a.Observe(snap(machine.PhaseTesting, 10.005, 2))

	if got := a.Points(); len(got) != 1 || got[0] != (Point{10.000, 1}) {
		t.Errorf("Points() = %v, want [{10 1}]", got)
	}
	if st := a.Stats(); st.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", st.Discarded)
	}
}

func TestDedupKeepsLargeMoves(t *testing.T) {
	a := NewAccumulator(0, nil)
	a.Observe(snap(machine.PhaseTesting, 10.000, 1))
	a.Observe(snap(machine.PhaseTesting, 10.02, 2))

	want := []Point{{10.000, 1}, {10.02, 2}}
	if got := a.Points(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Points() = %v, want %v", got, want)
	}
}

func TestDedupComparesAgainstLastAppended(t *testing.T) {
	a := NewAccumulator(0, nil)
	for _, d := range []float64{1.000, 1.004, 1.008, 1.012} {
		a.Observe(snap(machine.PhaseTesting, d, d))
	}
	// 1.004 and 1.008 are within 0.01 of 1.000; 1.012 is not.
	if got := a.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2 (%v)", got, a.Points())
	}
}

func TestDedupBoundaryIsInclusive(t *testing.T) {
	a := NewAccumulator(0, nil)
	a.Observe(snap(machine.PhaseTesting, 10.00, 1))
	a.Observe(snap(machine.PhaseTesting, 10.01, 1.1))
	if got := a.Len(); got != 2 {
		t.Errorf("a move of exactly the threshold was discarded: %v", a.Points())
	}
}

func TestDedupAppliesToBackwardMoves(t *testing.T) {
	a := NewAccumulator(0, nil)
	a.Observe(snap(machine.PhaseTesting, 5.0, 1))
	a.Observe(snap(machine.PhaseTesting, 4.995, 1))
	a.Observe(snap(machine.PhaseTesting, 4.9, 1))
	if got := a.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestStartingResetsSeries(t *testing.T) {
	a := NewAccumulator(0, nil)
	a.Observe(snap(machine.PhaseTesting, 5, 1))
	a.Observe(snap(machine.PhaseStarting, 0, 0))
	a.Observe(snap(machine.PhaseTesting, 1, 0.2))

	want := []Point{{1, 0.2}}
	if got := a.Points(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Points() = %v, want %v", got, want)
	}
	if st := a.Stats(); st.Resets != 1 {
		t.Errorf("Resets = %d, want 1", st.Resets)
	}
}

func TestOtherPhasesLeaveSeriesUntouched(t *testing.T) {
	others := []machine.Phase{
		machine.PhaseIdle,
		machine.PhaseAtTarget,
		machine.PhaseReturning,
		machine.PhaseComplete,
		machine.PhaseDisconnected,
		machine.PhaseError,
	}
	for _, phase := range others {
		t.Run(string(phase), func(t *testing.T) {
			a := NewAccumulator(0, nil)
			a.Observe(snap(machine.PhaseTesting, 2, 1))
			a.Observe(snap(phase, 50, 50))
			if got := a.Points(); len(got) != 1 || got[0] != (Point{2, 1}) {
				t.Errorf("Points() after %s = %v", phase, got)
			}
		})
	}
}

func TestIdleKeepsPreviousCurve(t *testing.T) {
	a := NewAccumulator(0, nil)
	a.Observe(snap(machine.PhaseStarting, 0, 0))
	a.Observe(snap(machine.PhaseTesting, 0.5, 0.1))
	a.Observe(snap(machine.PhaseTesting, 1.5, 0.4))
	a.Observe(snap(machine.PhaseAtTarget, 1.5, 0.4))
	a.Observe(snap(machine.PhaseReturning, 1.0, 0.2))
	a.Observe(snap(machine.PhaseComplete, 0, 0))
	a.Observe(snap(machine.PhaseIdle, 0, 0))

	if got := a.Len(); got != 2 {
		t.Errorf("Len() = %d after idle, want 2", got)
	}
	if last, ok := a.Last(); !ok || last != (Point{1.5, 0.4}) {
		t.Errorf("Last() = %v, %v", last, ok)
	}
}

func TestPointsIsACopy(t *testing.T) {
	a := NewAccumulator(0, nil)
	a.Observe(snap(machine.PhaseTesting, 1, 1))
	pts := a.Points()
	pts[0].Force = 100
	if got := a.Points()[0].Force; got != 1 {
		t.Errorf("mutating Points() result changed the series: force = %v", got)
	}
}

func TestCustomThreshold(t *testing.T) {
	a := NewAccumulator(0.5, nil)
	if a.Threshold() != 0.5 {
		t.Fatalf("Threshold() = %v", a.Threshold())
	}
	a.Observe(snap(machine.PhaseTesting, 1, 1))
	a.Observe(snap(machine.PhaseTesting, 1.3, 1))
	a.Observe(snap(machine.PhaseTesting, 1.6, 1))
	if got := a.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}

	if d := NewAccumulator(-1, nil).Threshold(); d != DefaultThreshold {
		t.Errorf("negative threshold not defaulted: %v", d)
	}
}

func TestAttachFollowsProjector(t *testing.T) {
	frames := fanout.NewHub[telemetry.Topic, telemetry.Frame](nil)
	source := sourceFunc(frames.On)

	p := machine.NewProjector(nil)
	p.Attach(source)
	a := NewAccumulator(0, nil)
	detach := a.Attach(p)

	publish := func(status int, deflection, force float64) {
		payload := fmt.Sprintf(`{"test_status": %d, "actual_deflection": %g, "actual_force": %g, "connected": true}`, status, deflection, force)
		frames.Publish(telemetry.TopicTelemetry, telemetry.Frame{Topic: telemetry.TopicTelemetry, Payload: json.RawMessage(payload)})
	}

	publish(1, 0, 0)
	publish(2, 0.2, 0.05)
	publish(2, 0.2, 0.06)
	publish(2, 0.4, 0.11)
	publish(5, 0.4, 0.11)

	want := []Point{{0.2, 0.05}, {0.4, 0.11}}
	if got := a.Points(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Points() = %v, want %v", got, want)
	}

	detach()
	publish(1, 0, 0)
	if got := a.Len(); got != 2 {
		t.Errorf("detached accumulator still observing: Len() = %d", got)
	}
}

type sourceFunc func(telemetry.Topic, func(telemetry.Frame)) func()

func (f sourceFunc) On(topic telemetry.Topic, fn telemetry.Listener) func() {
	return f(topic, fn)
}
