// Package units provides shared constants and validation for power units
package units

// Unit constants
const (
	W  = "W"
	MW = "mW"
	UW = "uW"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{W, MW, UW}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "W, mW, uW"
}

// ConvertPower converts a power from watts to the target units.
// Simulations report power in W.
func ConvertPower(powerW float64, targetUnits string) float64 {
	switch targetUnits {
	case MW:
		return powerW * 1e3
	case UW:
		return powerW * 1e6
	case W:
		return powerW
	default:
		return powerW // default to W if unknown unit
	}
}
