//
//
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/khalid729/grp-stiffness-test-machine/internal/audit"
	"github.com/khalid729/grp-stiffness-test-machine/internal/chart"
	"github.com/khalid729/grp-stiffness-test-machine/internal/command"
	"github.com/khalid729/grp-stiffness-test-machine/internal/config"
	"github.com/khalid729/grp-stiffness-test-machine/internal/fanout"
	"github.com/khalid729/grp-stiffness-test-machine/internal/machine"
	"github.com/khalid729/grp-stiffness-test-machine/internal/telemetry"
)

// ErrUnknownAction is returned by Execute for a name LookupAction rejects.
var ErrUnknownAction = errors.New("dashboard: unknown action")

// Result is the outcome of a finished test as announced by the backend.
type Result struct {
	TestID        int64   `json:"test_id"`
	RingStiffness float64 `json:"ring_stiffness"`
	SNClass       int     `json:"sn_class"`
	Passed        bool    `json:"passed"`
}

// Dashboard is the composition root of the sync layer.
type Dashboard struct {
	cfg    *config.Config
	logger *slog.Logger

	mux       *telemetry.Client
	projector *machine.Projector
	chart     *chart.Accumulator
	gateway   *command.Client
	audit     *audit.Logger
	alarms    *fanout.Buffer[telemetry.Alarm]

	mu         sync.RWMutex
	lastResult *Result

	detach    []func()
	closeOnce sync.Once
}

// New builds a disconnected dashboard from cfg. When cfg.Log.Dir is set the
// gateway's commands are also written to the audit trail there.
func New(cfg *config.Config, logger *slog.Logger) (*Dashboard, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dashboard: config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	socketURL, err := telemetry.SocketURL(cfg.Backend.URL, cfg.Backend.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	gateway, err := command.NewClient(command.Options{
		BaseURL:        cfg.Backend.URL,
		CommandTimeout: cfg.Timing.CommandTimeout,
		QueryTimeout:   cfg.Timing.QueryTimeout,
		Limits:         limits(cfg.Limits),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	var auditLogger *audit.Logger
	if cfg.Log.Dir != "" {
		auditLogger, err = audit.NewLogger(cfg.Log.Dir, audit.Rotation{
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return nil, fmt.Errorf("dashboard: %w", err)
		}
		gateway.SetAuditLogger(auditLogger)
	}

	d := &Dashboard{
		cfg:    cfg,
		logger: logger.With("component", "dashboard"),
		mux: telemetry.NewClient(telemetry.Options{
			URL:         socketURL,
			Origin:      cfg.Backend.Origin,
			DialTimeout: cfg.Timing.DialTimeout,
			Logger:      logger,
		}),
		projector: machine.NewProjector(logger),
		chart:     chart.NewAccumulator(cfg.Chart.DedupThreshold, logger),
		gateway:   gateway,
		audit:     auditLogger,
		alarms:    fanout.NewBuffer[telemetry.Alarm](cfg.Alarms.HistorySize),
	}

	// The accumulator attaches before the projector so it is registered
	// before the first snapshot can arrive.
	d.detach = append(d.detach,
		d.chart.Attach(d.projector),
		d.projector.Attach(d.mux),
		d.mux.On(telemetry.TopicTestComplete, d.handleTestComplete),
		d.mux.On(telemetry.TopicAlarmRaised, d.handleAlarm),
	)
	return d, nil
}

func limits(l config.LimitsConfig) command.Limits {
	return command.Limits{
		MaxForce:  l.MaxForce,
		MaxStroke: l.MaxStroke,
		MinSpeed:  l.MinSpeed,
		MaxSpeed:  l.MaxSpeed,
	}
}

// Start opens the telemetry connection.
func (d *Dashboard) Start(ctx context.Context) error {
	return d.mux.Connect(ctx)
}

// Reconnect re-opens the telemetry connection after a loss. It is a no-op
// while the connection is live.
func (d *Dashboard) Reconnect(ctx context.Context) error {
	return d.mux.Connect(ctx)
}

// Stop closes the telemetry connection; the dashboard can be started again.
func (d *Dashboard) Stop() {
	d.mux.Disconnect()
}

// Close tears everything down. It is safe to call more than once.
func (d *Dashboard) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.mux.Close()
		for _, fn := range d.detach {
			fn()
		}
		d.projector.Close()
		if d.audit != nil {
			if cerr := d.audit.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// Connected reports whether the telemetry link is live.
func (d *Dashboard) Connected() bool {
	return d.mux.IsConnected()
}

// Snapshot returns the current machine snapshot.
func (d *Dashboard) Snapshot() machine.Snapshot {
	return d.projector.Current()
}

// OnChange registers fn for every published snapshot.
func (d *Dashboard) OnChange(fn func(machine.Snapshot)) (unsubscribe func()) {
	return d.projector.OnChange(fn)
}

// Points returns the force/deflection series of the current test.
func (d *Dashboard) Points() []chart.Point {
	return d.chart.Points()
}

// ChartStats returns the accumulator counters.
func (d *Dashboard) ChartStats() chart.Stats {
	return d.chart.Stats()
}

// RecentAlarms returns the most recent alarm frames, oldest first.
func (d *Dashboard) RecentAlarms() []telemetry.Alarm {
	return d.alarms.Items()
}

// LastResult returns the most recent test-complete announcement.
func (d *Dashboard) LastResult() (Result, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastResult == nil {
		return Result{}, false
	}
	return *d.lastResult, true
}

// Gateway returns the command gateway.
func (d *Dashboard) Gateway() command.Gateway {
	return d.gateway
}

// Execute runs one of the argument-free actions by name.
func (d *Dashboard) Execute(ctx context.Context, name string) (command.Outcome, error) {
	action, ok := command.LookupAction(name)
	if !ok {
		return command.Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return action(ctx, d.gateway)
}

// Jog sends a jog state over the telemetry connection.
func (d *Dashboard) Jog(forward, on bool) error {
	if forward {
		return d.mux.JogForward(on)
	}
	return d.mux.JogBackward(on)
}

// SetJogSpeed checks velocity against the speed band and sends it over the
// telemetry connection.
func (d *Dashboard) SetJogSpeed(velocity float64) error {
	if err := command.ValidateJogSpeed(velocity, limits(d.cfg.Limits)); err != nil {
		return err
	}
	return d.mux.SetJogSpeed(velocity)
}

// Stats gathers the counters of every component.
func (d *Dashboard) Stats() Stats {
	return Stats{
		Multiplexer:    d.mux.Stats(),
		Pending:        d.mux.Pending(),
		Projector:      d.projector.Stats(),
		TestActive:     d.projector.Current().Phase.Active(),
		Chart:          d.chart.Stats(),
		DedupThreshold: d.chart.Threshold(),
		Alarms:         d.alarms.Len(),
	}
}

// Stats is a point-in-time view of the sync layer counters.
type Stats struct {
	Multiplexer    fanout.Stats
	Pending        int // frames received but not yet dispatched
	Projector      machine.ProjectorStats
	TestActive     bool
	Chart          chart.Stats
	DedupThreshold float64 // mm
	Alarms         int
}

func (d *Dashboard) handleTestComplete(f telemetry.Frame) {
	var r Result
	if err := f.Decode(&r); err != nil {
		d.logger.Warn("dropping malformed test-complete frame", "seq", f.Seq, "error", err)
		return
	}
	d.mu.Lock()
	d.lastResult = &r
	d.mu.Unlock()
	d.logger.Info("test complete", "test_id", r.TestID, "ring_stiffness", r.RingStiffness,
		"sn_class", r.SNClass, "passed", r.Passed)
}

func (d *Dashboard) handleAlarm(f telemetry.Frame) {
	var a telemetry.Alarm
	if err := f.Decode(&a); err != nil {
		d.logger.Warn("dropping malformed alarm frame", "seq", f.Seq, "error", err)
		return
	}
	d.alarms.Add(a)

	level := slog.LevelInfo
	switch a.Severity {
	case "warning":
		level = slog.LevelWarn
	case "critical", "error":
		level = slog.LevelError
	}
	d.logger.Log(context.Background(), level, "alarm raised", "code", a.Code, "message", a.Message, "severity", a.Severity)
}
