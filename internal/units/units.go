// Package units provides shared constants and validation for angle
// units exposed by the API. Channels store angles in degrees.
package units

import "math"

// Unit constants
const (
	Degrees = "deg"
	Radians = "rad"
)

// ValidUnits contains all valid angle unit values.
var ValidUnits = []string{Degrees, Radians}

// IsValid checks if the given unit is in the list of valid units.
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units
// for error messages.
func GetValidUnitsString() string {
	return "deg, rad"
}

// ConvertAngle converts an angle from degrees to the target units.
// Unknown units pass the value through unchanged. NaN propagates.
func ConvertAngle(deg float64, targetUnits string) float64 {
	switch targetUnits {
	case Radians:
		return deg * math.Pi / 180
	case Degrees:
		return deg
	default:
		return deg
	}
}
