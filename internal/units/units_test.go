package units

import (
	"math"
	"testing"
)

func TestConvertPower(t *testing.T) {
	tests := []struct {
		name     string
		powerW   float64
		units    string
		expected float64
	}{
		{"1 W to mW", 1.0, MW, 1000},
		{"1 W to uW", 1.0, UW, 1e6},
		{"1 W to W", 1.0, W, 1.0},
		{"unknown units default to W", 2.5, "unknown", 2.5},
		{"0 W to uW", 0.0, UW, 0.0},
		{"typical cell 3.2e-6 W to uW", 3.2e-6, UW, 3.2},
		{"typical cell 3.2e-6 W to mW", 3.2e-6, MW, 0.0032},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertPower(tt.powerW, tt.units)
			if math.Abs(result-tt.expected) > 1e-9*math.Max(1, math.Abs(tt.expected)) {
				t.Errorf("ConvertPower(%g, %s) = %g, want %g", tt.powerW, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid W", W, true},
		{"valid mW", MW, true},
		{"valid uW", UW, true},
		{"invalid unit", "kW", false},
		{"empty string", "", false},
		{"case sensitive", "w", false},
		{"case sensitive", "UW", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "W, mW, uW" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
