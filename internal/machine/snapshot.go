//
//
package machine

import (
	"encoding/json"
	"fmt"
	"math"
)

// Snapshot is the complete machine state at one instant.
type Snapshot struct {
	Force            float64 `json:"actual_force"`      // kN
	Deflection       float64 `json:"actual_deflection"` // mm
	TargetDeflection float64 `json:"target_deflection"` // mm
	RingStiffness    float64 `json:"ring_stiffness"`    // N/m²
	ForceAtTarget    float64 `json:"force_at_target"`   // kN
	SNClass          int     `json:"sn_class"`
	StatusCode       int     `json:"test_status"`
	Phase            Phase   `json:"phase"`
	TestPassed       bool    `json:"test_passed"`
	ServoReady       bool    `json:"servo_ready"`
	ServoError       bool    `json:"servo_error"`
	AtHome           bool    `json:"at_home"`
	UpperLimitHit    bool    `json:"upper_limit"`
	LowerLimitHit    bool    `json:"lower_limit"`
	EmergencyStop    bool    `json:"e_stop"`
	StartButton      bool    `json:"start_button"`
	LoadCellRaw      int     `json:"load_cell_raw"`
	Position         float64 `json:"actual_position"` // mm
	RemoteMode       bool    `json:"remote_mode"`
	Connected        bool    `json:"connected"`
}

// Disconnected returns the snapshot in effect before any frame arrives.
func Disconnected() Snapshot {
	return Snapshot{
		StatusCode: StatusDisconnected,
		Phase:      PhaseDisconnected,
	}
}

// IsTesting reports whether the machine is actively loading the sample.
func (s Snapshot) IsTesting() bool { return s.Phase == PhaseTesting }

// IsIdle reports whether the machine is ready with no test in progress.
func (s Snapshot) IsIdle() bool { return s.Phase == PhaseIdle }

// IsComplete reports whether a finished test's results are available.
func (s Snapshot) IsComplete() bool { return s.Phase == PhaseComplete }

// wireSnapshot mirrors the telemetry payload. Pointers distinguish absent
// keys from zero values; numbers are decoded as float64 so integral fields
// sent as 5000.0 still validate. The test status is kept raw so a value of
// the wrong type labels the frame as PhaseError instead of rejecting it.
type wireSnapshot struct {
	Force            *float64        `json:"actual_force"`
	Deflection       *float64        `json:"actual_deflection"`
	TargetDeflection *float64        `json:"target_deflection"`
	RingStiffness    *float64        `json:"ring_stiffness"`
	ForceAtTarget    *float64        `json:"force_at_target"`
	SNClass          *float64        `json:"sn_class"`
	TestStatus       json.RawMessage `json:"test_status"`
	TestPassed       *bool           `json:"test_passed"`
	ServoReady       *bool           `json:"servo_ready"`
	ServoError       *bool           `json:"servo_error"`
	AtHome           *bool           `json:"at_home"`
	UpperLimit       *bool           `json:"upper_limit"`
	LowerLimit       *bool           `json:"lower_limit"`
	EStop            *bool           `json:"e_stop"`
	StartButton      *bool           `json:"start_button"`
	LoadCellRaw      *float64        `json:"load_cell_raw"`
	Position         *float64        `json:"actual_position"`
	RemoteMode       *bool           `json:"remote_mode"`
	Connected        *bool           `json:"connected"`
}

// DecodeSnapshot validates a telemetry payload into a complete Snapshot.
// Absent fields take their zero value. A missing, non-numeric or
// non-integral test_status yields StatusInvalid and PhaseError. Payloads
// that are not JSON objects, or whose other fields have the wrong type, are
// rejected.
func DecodeSnapshot(payload json.RawMessage) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(payload, &w); err != nil {
		return Snapshot{}, fmt.Errorf("decode telemetry: %w", err)
	}
	if string(payload) == "null" {
		return Snapshot{}, fmt.Errorf("decode telemetry: empty payload")
	}

	s := Snapshot{
		Force:            num(w.Force),
		Deflection:       num(w.Deflection),
		TargetDeflection: num(w.TargetDeflection),
		RingStiffness:    num(w.RingStiffness),
		ForceAtTarget:    num(w.ForceAtTarget),
		SNClass:          integer(w.SNClass, 0),
		StatusCode:       statusCode(w.TestStatus),
		TestPassed:       flag(w.TestPassed),
		ServoReady:       flag(w.ServoReady),
		ServoError:       flag(w.ServoError),
		AtHome:           flag(w.AtHome),
		UpperLimitHit:    flag(w.UpperLimit),
		LowerLimitHit:    flag(w.LowerLimit),
		EmergencyStop:    flag(w.EStop),
		StartButton:      flag(w.StartButton),
		LoadCellRaw:      integer(w.LoadCellRaw, 0),
		Position:         num(w.Position),
		RemoteMode:       flag(w.RemoteMode),
		Connected:        flag(w.Connected),
	}
	s.Phase = PhaseFromCode(s.StatusCode)
	return s, nil
}

func num(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func flag(v *bool) bool {
	return v != nil && *v
}

// integer converts an integral float to int, returning fallback for absent,
// fractional or out-of-range values.
func integer(v *float64, fallback int) int {
	if v == nil {
		return fallback
	}
	f := *v
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return fallback
	}
	return int(f)
}

func statusCode(raw json.RawMessage) int {
	if len(raw) == 0 {
		return StatusInvalid
	}
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return StatusInvalid
	}
	return integer(f, StatusInvalid)
}
