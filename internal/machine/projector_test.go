package machine

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/khalid729/grp-stiffness-test-machine/internal/fanout"
	"github.com/khalid729/grp-stiffness-test-machine/internal/telemetry"
)

// fakeSource delivers frames synchronously on the caller's goroutine.
type fakeSource struct {
	hub *fanout.Hub[telemetry.Topic, telemetry.Frame]
}

func newFakeSource() *fakeSource {
	return &fakeSource{hub: fanout.NewHub[telemetry.Topic, telemetry.Frame](nil)}
}

func (s *fakeSource) On(topic telemetry.Topic, fn telemetry.Listener) func() {
	return s.hub.On(topic, fn)
}

func (s *fakeSource) telemetry(t *testing.T, status int, deflection float64, connected bool) {
	t.Helper()
	payload := fmt.Sprintf(`{"test_status": %d, "actual_deflection": %g, "connected": %t}`, status, deflection, connected)
	s.hub.Publish(telemetry.TopicTelemetry, telemetry.Frame{Topic: telemetry.TopicTelemetry, Payload: json.RawMessage(payload)})
}

func (s *fakeSource) status(connected bool) {
	payload, _ := json.Marshal(telemetry.ConnectionStatus{Connected: connected})
	s.hub.Publish(telemetry.TopicConnectionStatus, telemetry.Frame{Topic: telemetry.TopicConnectionStatus, Payload: payload})
}

func TestProjectorStartsDisconnected(t *testing.T) {
	p := NewProjector(nil)
	if got := p.Current(); got != Disconnected() {
		t.Errorf("Current() = %+v, want Disconnected()", got)
	}
	if p.Phase() != PhaseDisconnected {
		t.Errorf("Phase() = %s", p.Phase())
	}
}

func TestProjectorReplacesSnapshotWholesale(t *testing.T) {
	src := newFakeSource()
	p := NewProjector(nil)
	p.Attach(src)

	src.hub.Publish(telemetry.TopicTelemetry, telemetry.Frame{
		Topic:   telemetry.TopicTelemetry,
		Payload: json.RawMessage(`{"test_status": 0, "servo_ready": true, "actual_force": 4.5, "connected": true}`),
	})
	if s := p.Current(); !s.ServoReady || s.Force != 4.5 {
		t.Fatalf("first frame not applied: %+v", s)
	}

	src.hub.Publish(telemetry.TopicTelemetry, telemetry.Frame{
		Topic:   telemetry.TopicTelemetry,
		Payload: json.RawMessage(`{"test_status": 1, "connected": true}`),
	})
	s := p.Current()
	if s.ServoReady || s.Force != 0 {
		t.Errorf("fields carried over from previous frame: %+v", s)
	}
	if s.Phase != PhaseStarting {
		t.Errorf("Phase = %s, want starting", s.Phase)
	}
}

func TestProjectorCurrentIsACopy(t *testing.T) {
	src := newFakeSource()
	p := NewProjector(nil)
	p.Attach(src)
	src.telemetry(t, 2, 1.5, true)

	s := p.Current()
	s.Deflection = 99
	s.Phase = PhaseError
	if got := p.Current(); got.Deflection != 1.5 || got.Phase != PhaseTesting {
		t.Errorf("mutating a copy changed the canonical snapshot: %+v", got)
	}
}

func TestConnectionStatusOverridesTelemetry(t *testing.T) {
	src := newFakeSource()
	p := NewProjector(nil)
	p.Attach(src)

	src.telemetry(t, 0, 0, true)
	if !p.Current().Connected {
		t.Fatal("Connected = false after telemetry{connected:true}")
	}

	src.status(false)
	if p.Current().Connected {
		t.Fatal("Connected = true after connection-status{connected:false}")
	}

	// A stale frame claiming connectivity must not win.
	src.telemetry(t, 2, 1, true)
	s := p.Current()
	if s.Connected {
		t.Error("stale telemetry re-enabled the connected bit")
	}
	if s.Phase != PhaseTesting {
		t.Errorf("Phase = %s, want testing", s.Phase)
	}

	src.status(true)
	if !p.Current().Connected {
		t.Error("Connected = false after connection-status{connected:true}")
	}
	src.telemetry(t, 2, 2, false)
	if p.Current().Connected {
		t.Error("telemetry{connected:false} ignored while link is up")
	}
}

func TestMalformedTelemetryKeepsPreviousSnapshot(t *testing.T) {
	src := newFakeSource()
	p := NewProjector(nil)
	p.Attach(src)
	src.telemetry(t, 3, 8.2, true)

	var changes int
	p.OnChange(func(Snapshot) { changes++ })

	src.hub.Publish(telemetry.TopicTelemetry, telemetry.Frame{Topic: telemetry.TopicTelemetry, Payload: json.RawMessage(`[1,2,3]`)})

	if s := p.Current(); s.Phase != PhaseAtTarget || s.Deflection != 8.2 {
		t.Errorf("malformed frame replaced snapshot: %+v", s)
	}
	if changes != 0 {
		t.Errorf("change listeners invoked %d times for a dropped frame", changes)
	}
	if st := p.Stats(); st.Frames != 1 || st.Dropped != 1 || st.Listeners != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestUnknownStatusProjectsErrorPhase(t *testing.T) {
	src := newFakeSource()
	p := NewProjector(nil)
	p.Attach(src)
	src.telemetry(t, 42, 0, true)
	if p.Phase() != PhaseError {
		t.Errorf("Phase() = %s, want error", p.Phase())
	}
}

func TestOnChangeReceivesEverySnapshotInOrder(t *testing.T) {
	src := newFakeSource()
	p := NewProjector(nil)
	p.Attach(src)

	var phases []Phase
	var connected []bool
	p.OnChange(func(s Snapshot) {
		phases = append(phases, s.Phase)
		connected = append(connected, s.Connected)
	})

	src.telemetry(t, 1, 0, true)
	src.telemetry(t, 2, 0.5, true)
	src.status(false)
	src.status(false)
	src.telemetry(t, 5, 0.5, true)

	want := []Phase{PhaseStarting, PhaseTesting, PhaseTesting, PhaseComplete}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}
	wantConnected := []bool{true, true, false, false}
	if fmt.Sprint(connected) != fmt.Sprint(wantConnected) {
		t.Errorf("connected = %v, want %v", connected, wantConnected)
	}
}

func TestDetachStopsProjection(t *testing.T) {
	src := newFakeSource()
	p := NewProjector(nil)
	detach := p.Attach(src)
	src.telemetry(t, 0, 0, true)

	detach()
	src.telemetry(t, 2, 1, true)
	if p.Phase() != PhaseIdle {
		t.Errorf("Phase() = %s after detach, want idle", p.Phase())
	}
	if n := src.hub.Count(telemetry.TopicTelemetry); n != 0 {
		t.Errorf("%d telemetry listeners remain after detach", n)
	}
}
