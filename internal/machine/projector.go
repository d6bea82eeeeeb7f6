//
//
package machine

import (
	"log/slog"
	"sync"

	"github.com/khalid729/grp-stiffness-test-machine/internal/fanout"
	"github.com/khalid729/grp-stiffness-test-machine/internal/telemetry"
)

// Source is the subset of the multiplexer the projector listens to.
type Source interface {
	On(topic telemetry.Topic, fn telemetry.Listener) (unsubscribe func())
}

var _ Source = (*telemetry.Client)(nil)

// changeTopic is the single topic snapshot listeners register under.
type changeTopic struct{}

// Projector owns the canonical snapshot.
//
// LOCK ORDERING:
// 1. p.apply - serializes replace-and-publish so consumers never observe
//    snapshots out of order; held while change listeners run
// 2. p.mu    - guards current and linkUp; never held while listeners run
type Projector struct {
	logger *slog.Logger

	apply sync.Mutex

	mu      sync.RWMutex
	current Snapshot
	linkUp  bool
	frames  uint64
	dropped uint64

	hub *fanout.Hub[changeTopic, Snapshot]
}

// NewProjector returns a projector holding the Disconnected snapshot. A nil
// logger means slog.Default().
func NewProjector(logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "projector")
	return &Projector{
		logger:  logger,
		current: Disconnected(),
		linkUp:  true,
		hub:     fanout.NewHub[changeTopic, Snapshot](logger),
	}
}

// Attach subscribes the projector to the telemetry and connection-status
// topics of src. The returned function detaches it.
func (p *Projector) Attach(src Source) (detach func()) {
	offTelemetry := src.On(telemetry.TopicTelemetry, p.HandleTelemetry)
	offStatus := src.On(telemetry.TopicConnectionStatus, p.HandleConnectionStatus)
	return func() {
		offTelemetry()
		offStatus()
	}
}

// Current returns a copy of the canonical snapshot.
func (p *Projector) Current() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Phase returns the lifecycle phase of the current snapshot.
func (p *Projector) Phase() Phase {
	return p.Current().Phase
}

// OnChange registers fn to receive every new snapshot. Listeners run in
// registration order, one snapshot at a time.
func (p *Projector) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	return p.hub.On(changeTopic{}, fn)
}

// HandleTelemetry replaces the snapshot with the one carried by f. Frames
// that do not decode are logged and dropped; the previous snapshot stays
// current.
func (p *Projector) HandleTelemetry(f telemetry.Frame) {
	next, err := DecodeSnapshot(f.Payload)
	if err != nil {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.logger.Warn("dropping telemetry frame", "seq", f.Seq, "error", err)
		return
	}

	p.apply.Lock()
	defer p.apply.Unlock()

	p.mu.Lock()
	prev := p.current
	if !p.linkUp {
		next.Connected = false
	}
	p.current = next
	p.frames++
	p.mu.Unlock()

	if prev.Phase != next.Phase {
		p.logTransition(prev, next)
	}
	p.hub.Publish(changeTopic{}, next)
}

// HandleConnectionStatus records the link state reported by the
// connection-status topic and overrides the connected bit of the current
// snapshot. Payloads that do not decode count as a lost link.
func (p *Projector) HandleConnectionStatus(f telemetry.Frame) {
	var st telemetry.ConnectionStatus
	if err := f.Decode(&st); err != nil {
		p.logger.Warn("malformed connection status, treating link as down", "error", err)
		st.Connected = false
	}

	p.apply.Lock()
	defer p.apply.Unlock()

	p.mu.Lock()
	changed := p.linkUp != st.Connected || p.current.Connected != st.Connected
	p.linkUp = st.Connected
	p.current.Connected = st.Connected
	next := p.current
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Info("link status changed", "connected", st.Connected)
	p.hub.Publish(changeTopic{}, next)
}

// ProjectorStats counts frames seen by a projector.
type ProjectorStats struct {
	Frames    uint64
	Dropped   uint64
	Listeners int
}

// Stats returns the projector counters.
func (p *Projector) Stats() ProjectorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProjectorStats{
		Frames:    p.frames,
		Dropped:   p.dropped,
		Listeners: p.hub.Count(changeTopic{}),
	}
}

// Close drops every change listener.
func (p *Projector) Close() {
	p.hub.Close()
}

func (p *Projector) logTransition(prev, next Snapshot) {
	attrs := []any{"from", prev.Phase, "to", next.Phase, "status", next.StatusCode}
	switch next.Phase {
	case PhaseError:
		p.logger.Warn("unrecognized test status", attrs...)
	case PhaseComplete:
		attrs = append(attrs,
			"ring_stiffness", next.RingStiffness,
			"sn_class", next.SNClass,
			"passed", next.TestPassed)
		p.logger.Info("test complete", attrs...)
	default:
		p.logger.Info("phase transition", attrs...)
	}
}
