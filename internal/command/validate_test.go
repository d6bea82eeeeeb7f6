package command

import (
	"errors"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestValidateParameters(t *testing.T) {
	tests := []struct {
		name    string
		update  ParametersUpdate
		wantErr bool
	}{
		{"empty", ParametersUpdate{}, true},
		{"diameter", ParametersUpdate{PipeDiameter: ptr(200)}, false},
		{"zero diameter", ParametersUpdate{PipeDiameter: ptr(0)}, true},
		{"negative length", ParametersUpdate{PipeLength: ptr(-1)}, true},
		{"deflection 3%", ParametersUpdate{DeflectionPercent: ptr(3)}, false},
		{"deflection over 100%", ParametersUpdate{DeflectionPercent: ptr(101)}, true},
		{"speed at min", ParametersUpdate{TestSpeed: ptr(1)}, false},
		{"speed at max", ParametersUpdate{TestSpeed: ptr(100)}, false},
		{"speed below min", ParametersUpdate{TestSpeed: ptr(0.5)}, true},
		{"speed above max", ParametersUpdate{TestSpeed: ptr(100.1)}, true},
		{"stroke at limit", ParametersUpdate{MaxStroke: ptr(500)}, false},
		{"stroke over limit", ParametersUpdate{MaxStroke: ptr(501)}, true},
		{"force at limit", ParametersUpdate{MaxForce: ptr(200)}, false},
		{"force over limit", ParametersUpdate{MaxForce: ptr(200.5)}, true},
		{"one bad field spoils all", ParametersUpdate{PipeDiameter: ptr(200), MaxForce: ptr(-5)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.update, testLimits)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateParameters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRange) {
				t.Errorf("Expected ErrInvalidRange, got %v", err)
			}
		})
	}
}

func TestValidateJogSpeed(t *testing.T) {
	if err := ValidateJogSpeed(50, testLimits); err != nil {
		t.Errorf("ValidateJogSpeed(50) failed: %v", err)
	}
	if err := ValidateJogSpeed(0, testLimits); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Expected ErrInvalidRange, got %v", err)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "SUCCESS"},
		{NormalizeStatus(422, "bad"), "INVALID_RANGE"},
		{NormalizeStatus(404, ""), "NOT_FOUND"},
		{NormalizeStatus(504, ""), "UNAVAILABLE"},
		{NormalizeStatus(500, ""), "INTERNAL"},
		{NormalizeStatus(409, ""), "INVALID_RANGE"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestOutcomeFromError(t *testing.T) {
	if out := OutcomeFromError(NormalizeStatus(503, "PLC offline")); out.Success || out.Message != "PLC offline" {
		t.Errorf("OutcomeFromError() = %+v", out)
	}
	if out := OutcomeFromError(errors.New("dial tcp: refused")); out.Message != "dial tcp: refused" {
		t.Errorf("OutcomeFromError() = %+v", out)
	}
}
