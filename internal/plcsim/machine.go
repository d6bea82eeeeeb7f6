//
//
package plcsim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/khalid729/grp-stiffness-test-machine/internal/command"
	"github.com/khalid729/grp-stiffness-test-machine/internal/machine"
	"github.com/khalid729/grp-stiffness-test-machine/internal/telemetry"
)

// Operations accepted by Execute. They match the audit action names of the
// command gateway.
const (
	OpStart         = "start"
	OpStop          = "stop"
	OpHome          = "home"
	OpServoEnable   = "servoEnable"
	OpServoDisable  = "servoDisable"
	OpServoReset    = "servoReset"
	OpJogSpeed      = "jogSpeed"
	OpJogForward    = "jogForward"
	OpJogBackward   = "jogBackward"
	OpLockUpper     = "lockUpper"
	OpLockLower     = "lockLower"
	OpUnlockAll     = "unlockAll"
	OpModeRemote    = "modeRemote"
	OpModeLocal     = "modeLocal"
	OpReconnect     = "reconnect"
	OpSetParameters = "setParameters"
)

const (
	queueTimeout    = 5 * time.Second
	responseTimeout = 30 * time.Second
)

// Event is an unsolicited message for connected clients.
type Event struct {
	Name string
	Data any
}

// TestComplete is the payload of the test_complete event.
type TestComplete struct {
	TestID        int64   `json:"test_id"`
	RingStiffness float64 `json:"ring_stiffness"`
	SNClass       int     `json:"sn_class"`
	Passed        bool    `json:"passed"`
}

// MachineOptions configures a Machine.
type MachineOptions struct {
	Limits  command.Limits
	Sample  Sample
	History *History
	// CompleteHold is how long the complete phase is held before idle.
	CompleteHold time.Duration
	// PLCAddress is reported by the connection status.
	PLCAddress string
	Logger     *slog.Logger
}

// Machine simulates the ring stiffness tester PLC. Commands are processed
// in FIFO order by a single worker; Step advances the motion.
type Machine struct {
	mu      sync.Mutex
	st      state
	params  command.Parameters
	opts    MachineOptions
	history *History
	logger  *slog.Logger
	events  []Event

	commandQueue chan request
	stopChan     chan struct{}
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

type state struct {
	status        int
	deflection    float64 // mm from contact
	force         float64 // kN
	position      float64 // mm from home
	base          float64 // position at test start
	target        float64
	forceAtTarget float64
	peakForce     float64
	ringStiffness float64
	snClass       int
	passed        bool
	aborted       bool
	elapsed       time.Duration
	hold          time.Duration
	points        []command.DataPoint

	plcConnected bool
	servoReady   bool
	servoError   bool
	emergency    bool
	remoteMode   bool
	upperLimit   bool
	lowerLimit   bool
	upperClamp   bool
	lowerClamp   bool
	jogForward   bool
	jogBackward  bool
	jogSpeed     float64 // mm/min
}

type request struct {
	op       string
	arg      any
	response chan command.Outcome
}

// DefaultParameters are the controller's power-on parameters.
func DefaultParameters() command.Parameters {
	return command.Parameters{
		PipeDiameter:      200,
		PipeLength:        300,
		DeflectionPercent: 3,
		TestSpeed:         10,
		MaxStroke:         100,
		MaxForce:          50,
	}
}

// NewMachine creates an idle, connected machine with the servo enabled in
// remote mode, and starts its command worker.
func NewMachine(opts MachineOptions) *Machine {
	if opts.Sample.Stiffness <= 0 {
		opts.Sample.Stiffness = 5200
	}
	if opts.CompleteHold <= 0 {
		opts.CompleteHold = 2 * time.Second
	}
	if opts.History == nil {
		opts.History = NewHistory()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		st: state{
			status:       machine.StatusIdle,
			plcConnected: true,
			servoReady:   true,
			remoteMode:   true,
			jogSpeed:     10,
		},
		params:       DefaultParameters(),
		opts:         opts,
		history:      opts.History,
		logger:       logger.With("component", "plcsim"),
		commandQueue: make(chan request, 100),
		stopChan:     make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}

	m.wg.Add(1)
	go m.commandWorker()

	return m
}

// History returns the store completed tests and alarms are written to.
func (m *Machine) History() *History {
	return m.history
}

// commandWorker processes commands in FIFO order
func (m *Machine) commandWorker() {
	defer m.wg.Done()

	for {
		select {
		case req := <-m.commandQueue:
			req.response <- m.process(req)
		case <-m.stopChan:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// Execute queues an operation and waits for its outcome.
func (m *Machine) Execute(op string, arg any) command.Outcome {
	response := make(chan command.Outcome, 1)
	req := request{op: op, arg: arg, response: response}

	select {
	case m.commandQueue <- req:
		select {
		case out := <-response:
			return out
		case <-time.After(responseTimeout):
			return command.Outcome{Message: "Command timed out"}
		case <-m.ctx.Done():
			return command.Outcome{Message: "Controller shutting down"}
		}
	case <-time.After(queueTimeout):
		return command.Outcome{Message: "Controller busy"}
	case <-m.ctx.Done():
		return command.Outcome{Message: "Controller shutting down"}
	}
}

func (m *Machine) process(req request) command.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.op == OpReconnect {
		m.st.plcConnected = true
		return succeed("Reconnected successfully")
	}
	if !m.st.plcConnected {
		return refuse("PLC not connected")
	}

	switch req.op {
	case OpStart:
		return m.startLocked()
	case OpStop:
		return m.stopLocked()
	case OpHome:
		if m.activeLocked() {
			return refuse("Failed to start homing")
		}
		m.st.position = 0
		m.st.jogForward, m.st.jogBackward = false, false
		return succeed("Homing started")
	case OpServoEnable:
		if m.st.emergency {
			return refuse("Failed to enable servo")
		}
		m.st.servoReady = true
		return succeed("Servo enabled")
	case OpServoDisable:
		if m.activeLocked() {
			return refuse("Failed to disable servo")
		}
		m.st.servoReady = false
		m.st.jogForward, m.st.jogBackward = false, false
		return succeed("Servo disabled")
	case OpServoReset:
		m.st.servoError = false
		return succeed("Alarm reset")
	case OpJogSpeed:
		v, _ := req.arg.(float64)
		if err := command.ValidateJogSpeed(v, m.opts.Limits); err != nil {
			return refuse("Failed to set jog speed")
		}
		m.st.jogSpeed = v
		return succeed(fmt.Sprintf("Jog speed set to %v mm/min", v))
	case OpJogForward, OpJogBackward:
		on, _ := req.arg.(bool)
		return m.jogLocked(req.op == OpJogForward, on)
	case OpLockUpper:
		m.st.upperClamp = true
		return succeed("Upper clamp locked")
	case OpLockLower:
		m.st.lowerClamp = true
		return succeed("Lower clamp locked")
	case OpUnlockAll:
		m.st.upperClamp, m.st.lowerClamp = false, false
		return succeed("All clamps unlocked")
	case OpModeRemote:
		m.st.remoteMode = true
		return succeed("Switched to Remote mode")
	case OpModeLocal:
		m.st.remoteMode = false
		return succeed("Switched to Local mode")
	case OpSetParameters:
		u, _ := req.arg.(command.ParametersUpdate)
		return m.setParametersLocked(u)
	default:
		return refuse(fmt.Sprintf("Unknown command %q", req.op))
	}
}

func (m *Machine) startLocked() command.Outcome {
	switch {
	case m.activeLocked():
		return refuse("Failed to start test: test already running")
	case m.st.emergency:
		return refuse("Failed to start test: emergency stop active")
	case !m.st.remoteMode:
		return refuse("Failed to start test: machine in local mode")
	case !m.st.servoReady || m.st.servoError:
		return refuse("Failed to start test: servo not ready")
	}

	m.st.status = machine.StatusStarting
	m.st.target = m.params.PipeDiameter * m.params.DeflectionPercent / 100
	m.st.base = m.st.position
	m.st.deflection, m.st.force = 0, 0
	m.st.forceAtTarget, m.st.peakForce, m.st.ringStiffness = 0, 0, 0
	m.st.snClass, m.st.passed, m.st.aborted = 0, false, false
	m.st.upperLimit, m.st.lowerLimit = false, false
	m.st.jogForward, m.st.jogBackward = false, false
	m.st.elapsed = 0
	m.st.points = nil
	m.raiseLocked("I001", "Test Started", "info")
	m.logger.Info("test started", "target_deflection", m.st.target, "speed", m.params.TestSpeed)
	return succeed("Test started")
}

func (m *Machine) stopLocked() command.Outcome {
	m.st.jogForward, m.st.jogBackward = false, false
	if m.activeLocked() && m.st.status != machine.StatusReturning {
		m.abortLocked("W001", "Test stopped by operator", "warning")
	}
	return succeed("Emergency stop executed")
}

func (m *Machine) jogLocked(forward, on bool) command.Outcome {
	dir := "backward"
	if forward {
		dir = "forward"
	}
	if on && (m.activeLocked() || !m.st.servoReady) {
		return refuse("Failed to start jog")
	}
	if forward {
		m.st.jogForward = on
		if on {
			m.st.jogBackward = false
		}
	} else {
		m.st.jogBackward = on
		if on {
			m.st.jogForward = false
		}
	}
	if on {
		return succeed("Jog " + dir + " started")
	}
	return succeed("Jog " + dir + " stopped")
}

func (m *Machine) setParametersLocked(u command.ParametersUpdate) command.Outcome {
	if m.activeLocked() {
		return refuse("Failed to write parameters: test running")
	}
	if err := command.ValidateParameters(u, m.opts.Limits); err != nil {
		return refuse(err.Error())
	}
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&m.params.PipeDiameter, u.PipeDiameter)
	set(&m.params.PipeLength, u.PipeLength)
	set(&m.params.DeflectionPercent, u.DeflectionPercent)
	set(&m.params.TestSpeed, u.TestSpeed)
	set(&m.params.MaxStroke, u.MaxStroke)
	set(&m.params.MaxForce, u.MaxForce)
	return succeed("Parameters updated successfully")
}

// Step advances the simulation by dt and returns the events raised since
// the previous call, in order.
func (m *Machine) Step(dt time.Duration) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.st.plcConnected {
		m.stepLocked(dt)
	}
	events := m.events
	m.events = nil
	return events
}

func (m *Machine) stepLocked(dt time.Duration) {
	secs := dt.Seconds()

	switch m.st.status {
	case machine.StatusStarting:
		m.st.status = machine.StatusTesting

	case machine.StatusTesting:
		m.st.elapsed += dt
		m.st.deflection = math.Min(m.st.deflection+m.params.TestSpeed/60*secs, m.st.target)
		m.st.force = m.forceLocked()
		m.st.peakForce = math.Max(m.st.peakForce, m.st.force)
		m.st.position = m.st.base + m.st.deflection
		m.recordPointLocked()

		switch {
		case m.st.force > m.params.MaxForce:
			m.abortLocked("W002", "Force Limit Warning", "warning")
		case m.st.position > m.params.MaxStroke:
			m.st.lowerLimit = true
			m.abortLocked("W001", "Position Limit Warning", "warning")
		case m.st.deflection >= m.st.target:
			m.st.status = machine.StatusAtTarget
		}

	case machine.StatusAtTarget:
		m.st.elapsed += dt
		m.st.forceAtTarget = m.st.force
		m.st.ringStiffness = RingStiffness(m.st.force, m.st.deflection, m.params.PipeDiameter, m.params.PipeLength)
		m.st.snClass, m.st.passed = Classify(m.st.ringStiffness)
		m.st.status = machine.StatusReturning

	case machine.StatusReturning:
		m.st.elapsed += dt
		m.st.deflection = math.Max(m.st.deflection-m.returnSpeed()/60*secs, 0)
		m.st.force = m.forceLocked()
		m.st.position = m.st.base + m.st.deflection
		if m.st.deflection > 0 {
			return
		}
		if m.st.aborted {
			m.st.status = machine.StatusIdle
			return
		}
		m.completeLocked()

	case machine.StatusComplete:
		m.st.hold -= dt
		if m.st.hold <= 0 {
			m.st.status = machine.StatusIdle
		}
		m.jogStepLocked(secs)

	default:
		m.jogStepLocked(secs)
	}
}

func (m *Machine) jogStepLocked(secs float64) {
	if !m.st.servoReady {
		return
	}
	delta := m.st.jogSpeed / 60 * secs
	switch {
	case m.st.jogForward:
		m.st.position = math.Min(m.st.position+delta, m.params.MaxStroke)
	case m.st.jogBackward:
		m.st.position = math.Max(m.st.position-delta, 0)
	}
}

func (m *Machine) completeLocked() {
	m.st.status = machine.StatusComplete
	m.st.hold = m.opts.CompleteHold

	forceAtTarget := m.st.forceAtTarget
	peak := m.st.peakForce
	stiffness := m.st.ringStiffness
	snClass := m.st.snClass
	speed := m.params.TestSpeed
	duration := m.st.elapsed.Seconds()
	id := m.history.AddTest(command.TestRecord{
		PipeDiameter:      m.params.PipeDiameter,
		PipeLength:        m.params.PipeLength,
		DeflectionPercent: m.params.DeflectionPercent,
		ForceAtTarget:     &forceAtTarget,
		MaxForce:          &peak,
		RingStiffness:     &stiffness,
		SNClass:           &snClass,
		Passed:            m.st.passed,
		TestSpeed:         &speed,
		Duration:          &duration,
		DataPoints:        m.st.points,
	})
	m.st.points = nil

	m.events = append(m.events, Event{Name: telemetry.EventTestComplete, Data: TestComplete{
		TestID:        id,
		RingStiffness: stiffness,
		SNClass:       snClass,
		Passed:        m.st.passed,
	}})
	m.raiseLocked("I002", "Test Completed", "info")
	m.logger.Info("test complete", "test_id", id, "ring_stiffness", stiffness, "sn_class", snClass, "passed", m.st.passed)
}

// abortLocked ends the active test without a result; the crosshead still
// returns to contact before the machine reports idle.
func (m *Machine) abortLocked(code, message, severity string) {
	m.st.aborted = true
	m.st.status = machine.StatusReturning
	m.st.points = nil
	m.raiseLocked(code, message, severity)
	m.logger.Warn("test aborted", "code", code, "reason", message)
}

func (m *Machine) raiseLocked(code, message, severity string) {
	a := m.history.RaiseAlarm(code, message, severity)
	m.events = append(m.events, Event{Name: telemetry.EventAlarm, Data: telemetry.Alarm{
		Code:      a.Code,
		Message:   a.Message,
		Severity:  a.Severity,
		Timestamp: a.Timestamp,
	}})
}

func (m *Machine) recordPointLocked() {
	position := m.st.position
	m.st.points = append(m.st.points, command.DataPoint{
		Timestamp:  m.st.elapsed.Seconds(),
		Force:      m.st.force,
		Deflection: m.st.deflection,
		Position:   &position,
	})
}

func (m *Machine) forceLocked() float64 {
	return m.opts.Sample.ForceAt(m.st.deflection, m.params.PipeDiameter, m.params.PipeLength)
}

func (m *Machine) returnSpeed() float64 {
	v := m.params.TestSpeed * 5
	if m.opts.Limits.MaxSpeed > 0 && v > m.opts.Limits.MaxSpeed {
		v = m.opts.Limits.MaxSpeed
	}
	return v
}

func (m *Machine) activeLocked() bool {
	return machine.PhaseFromCode(m.st.status).Active()
}

// Snapshot returns the live data the controller would publish now.
func (m *Machine) Snapshot() machine.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.st.plcConnected {
		return machine.Disconnected()
	}
	s := machine.Snapshot{
		Force:            round(m.st.force, 3),
		Deflection:       round(m.st.deflection, 3),
		TargetDeflection: round(m.st.target, 3),
		RingStiffness:    round(m.st.ringStiffness, 1),
		ForceAtTarget:    round(m.st.forceAtTarget, 3),
		SNClass:          m.st.snClass,
		StatusCode:       m.st.status,
		TestPassed:       m.st.passed,
		ServoReady:       m.st.servoReady,
		ServoError:       m.st.servoError,
		AtHome:           m.st.position == 0,
		UpperLimitHit:    m.st.upperLimit,
		LowerLimitHit:    m.st.lowerLimit,
		EmergencyStop:    m.st.emergency,
		LoadCellRaw:      LoadCellRaw(m.st.force),
		Position:         round(m.st.position, 2),
		RemoteMode:       m.st.remoteMode,
		Connected:        true,
	}
	s.Phase = machine.PhaseFromCode(s.StatusCode)
	return s
}

// Parameters returns the current test parameters.
func (m *Machine) Parameters() command.Parameters {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.params
	p.Connected = m.st.plcConnected
	return p
}

// ConnectionStatus reports the simulated PLC link.
func (m *Machine) ConnectionStatus() command.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := command.ConnectionStatus{Connected: m.st.plcConnected, IP: m.opts.PLCAddress, Message: "Disconnected"}
	if st.Connected {
		st.Message = "Connected"
	}
	return st
}

// Mode returns the control mode.
func (m *Machine) Mode() command.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.remoteMode {
		return command.Mode{RemoteMode: true, Mode: "remote"}
	}
	return command.Mode{RemoteMode: false, Mode: "local"}
}

// StopAllJog clears both jog directions.
func (m *Machine) StopAllJog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.jogForward, m.st.jogBackward = false, false
}

// DropLink simulates losing the PLC. Live data reports the disconnected
// shape until OpReconnect is executed.
func (m *Machine) DropLink() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.plcConnected {
		return
	}
	m.st.plcConnected = false
	if m.activeLocked() {
		m.st.status = machine.StatusIdle
		m.st.points = nil
	}
	m.st.jogForward, m.st.jogBackward = false, false
	m.raiseLocked("E002", "Communication Lost", "critical")
}

// SetEmergencyStop latches or releases the hardware emergency stop.
// Latching aborts an active test and drops the servo.
func (m *Machine) SetEmergencyStop(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.emergency == active {
		return
	}
	m.st.emergency = active
	if !active {
		return
	}
	m.st.servoReady = false
	m.st.jogForward, m.st.jogBackward = false, false
	if m.activeLocked() && m.st.status != machine.StatusReturning {
		m.abortLocked("E001", "Servo Fault", "critical")
	}
}

// RaiseAlarm records an alarm and queues it for clients.
func (m *Machine) RaiseAlarm(code, message, severity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raiseLocked(code, message, severity)
}

// Close stops the command worker.
func (m *Machine) Close() error {
	m.cancel()
	close(m.stopChan)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("shutdown timeout")
	}
}

func succeed(msg string) command.Outcome { return command.Outcome{Success: true, Message: msg} }
func refuse(msg string) command.Outcome { return command.Outcome{Message: msg} }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
