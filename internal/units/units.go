// Package units provides shared constants and conversions for the speed and
// distance units used across the launch monitor. Internally the engine works
// in meters and meters per second; the API layer converts on the way out.
package units

// Speed unit constants
const (
	MPS = "mps"
	MPH = "mph"
	KPH = "kph"
)

// Distance unit constants
const (
	Meters = "m"
	Yards  = "yd"
	Feet   = "ft"
)

// ValidSpeedUnits contains all valid speed unit values
var ValidSpeedUnits = []string{MPS, MPH, KPH}

// IsValidSpeedUnit checks if the given unit is in the list of valid units
func IsValidSpeedUnit(unit string) bool {
	for _, validUnit := range ValidSpeedUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidSpeedUnitsString returns a comma-separated string of valid units for error messages
func GetValidSpeedUnitsString() string {
	return "mps, mph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// The engine stores speeds in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KPH:
		return speedMPS * 3.6
	case MPS:
		return speedMPS
	default:
		return speedMPS
	}
}

// MetersToYards converts a distance in meters to yards.
func MetersToYards(m float64) float64 {
	return m * 1.0936132983
}

// YardsToMeters converts a distance in yards to meters.
func YardsToMeters(yd float64) float64 {
	return yd / 1.0936132983
}

// MphToMps converts miles per hour to meters per second.
func MphToMps(mph float64) float64 {
	return mph / 2.2369362920544
}
