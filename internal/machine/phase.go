//
//
package machine

import "math"

// Phase is the discrete test lifecycle label.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseIdle         Phase = "idle"
	PhaseStarting     Phase = "starting"
	PhaseTesting      Phase = "testing"
	PhaseAtTarget     Phase = "atTarget"
	PhaseReturning    Phase = "returning"
	PhaseComplete     Phase = "complete"
	PhaseError        Phase = "error"
)

// Raw test status codes reported by the controller.
const (
	StatusDisconnected = -1
	StatusIdle         = 0
	StatusStarting     = 1
	StatusTesting      = 2
	StatusAtTarget     = 3
	StatusReturning    = 4
	StatusComplete     = 5
)

// StatusInvalid marks a frame whose test status was missing or not an
// integer. It maps to PhaseError like any other unknown code.
const StatusInvalid = math.MinInt32

// PhaseFromCode labels a raw test status. Every integer maps to exactly one
// phase.
func PhaseFromCode(code int) Phase {
	switch code {
	case StatusDisconnected:
		return PhaseDisconnected
	case StatusIdle:
		return PhaseIdle
	case StatusStarting:
		return PhaseStarting
	case StatusTesting:
		return PhaseTesting
	case StatusAtTarget:
		return PhaseAtTarget
	case StatusReturning:
		return PhaseReturning
	case StatusComplete:
		return PhaseComplete
	default:
		return PhaseError
	}
}

// Code returns the raw status for p, or StatusInvalid for PhaseError and
// unknown labels.
func (p Phase) Code() int {
	switch p {
	case PhaseDisconnected:
		return StatusDisconnected
	case PhaseIdle:
		return StatusIdle
	case PhaseStarting:
		return StatusStarting
	case PhaseTesting:
		return StatusTesting
	case PhaseAtTarget:
		return StatusAtTarget
	case PhaseReturning:
		return StatusReturning
	case PhaseComplete:
		return StatusComplete
	default:
		return StatusInvalid
	}
}

// Active reports whether a test is in progress.
func (p Phase) Active() bool {
	switch p {
	case PhaseStarting, PhaseTesting, PhaseAtTarget, PhaseReturning:
		return true
	}
	return false
}

func (p Phase) String() string {
	return string(p)
}
