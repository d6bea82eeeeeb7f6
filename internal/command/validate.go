//
//
package command

import "fmt"

// Limits are the machine safety limits.
type Limits struct {
	MaxForce  float64 // kN
	MaxStroke float64 // mm
	MinSpeed  float64 // mm/min
	MaxSpeed  float64 // mm/min
}

// ValidateParameters checks every set field of u against l. Errors wrap
// ErrInvalidRange.
func ValidateParameters(u ParametersUpdate, l Limits) error {
	if u.Empty() {
		return fmt.Errorf("%w: no parameters to set", ErrInvalidRange)
	}
	if v := u.PipeDiameter; v != nil && *v <= 0 {
		return fmt.Errorf("%w: pipe diameter must be positive, got %v", ErrInvalidRange, *v)
	}
	if v := u.PipeLength; v != nil && *v <= 0 {
		return fmt.Errorf("%w: pipe length must be positive, got %v", ErrInvalidRange, *v)
	}
	if v := u.DeflectionPercent; v != nil && (*v <= 0 || *v > 100) {
		return fmt.Errorf("%w: deflection percent must be in (0, 100], got %v", ErrInvalidRange, *v)
	}
	if v := u.TestSpeed; v != nil {
		if err := validateSpeed(*v, l); err != nil {
			return err
		}
	}
	if v := u.MaxStroke; v != nil && (*v <= 0 || *v > l.MaxStroke) {
		return fmt.Errorf("%w: max stroke must be in (0, %v] mm, got %v", ErrInvalidRange, l.MaxStroke, *v)
	}
	if v := u.MaxForce; v != nil && (*v <= 0 || *v > l.MaxForce) {
		return fmt.Errorf("%w: max force must be in (0, %v] kN, got %v", ErrInvalidRange, l.MaxForce, *v)
	}
	return nil
}

// ValidateJogSpeed checks a jog velocity against the speed band.
func ValidateJogSpeed(velocity float64, l Limits) error {
	return validateSpeed(velocity, l)
}

func validateSpeed(v float64, l Limits) error {
	if v < l.MinSpeed || v > l.MaxSpeed {
		return fmt.Errorf("%w: speed must be in [%v, %v] mm/min, got %v", ErrInvalidRange, l.MinSpeed, l.MaxSpeed, v)
	}
	return nil
}
