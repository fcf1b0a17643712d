// Package ballistics converts a captured burst of ball observations into a
// 3-D flight estimate: launch fit, degenerate-burst rejection, and forward
// integration of a simple drag-and-gravity flight model adjusted for wind,
// temperature and ball compression.
package ballistics

// CompressionClass identifies the ball construction category selected on the
// settings screen. Softer balls lose a little carry, harder balls gain some,
// and range balls are the worst of the lot.
type CompressionClass string

const (
	CompressionLow   CompressionClass = "low"
	CompressionMid   CompressionClass = "mid"
	CompressionHigh  CompressionClass = "high"
	CompressionRange CompressionClass = "range"
)

// Environment bounds. Out-of-range construction clamps to these rather than
// erroring; the UI constrains its sliders to the same ranges but the engine
// does not trust external input.
const (
	MinWindDirectionDeg = -180.0
	MaxWindDirectionDeg = 180.0
	MinLaunchAngleDeg   = 8.0
	MaxLaunchAngleDeg   = 22.0
	MaxLaunchVarianceDeg = 4.0

	// TempBaselineF is the reference temperature for the distance factor.
	TempBaselineF = 75.0
)

// Environment is an immutable per-shot snapshot of the playing conditions.
// It is built once at arm time and never mutated by the engine, so an
// in-flight estimation can never observe a torn read from UI edits.
type Environment struct {
	WindSpeedMph       float64          // >= 0
	WindDirectionDeg   float64          // [-180,180]; 0 = pure tailwind, ±180 = headwind, +90 = left-to-right
	TemperatureF       float64
	Compression        CompressionClass // one of the CompressionClass constants
	BaseLaunchAngleDeg float64          // [8,22]; fallback when no camera-derived angle exists
	LaunchVarianceDeg  float64          // [0,4]; widens the fallback angle only
}

// NewEnvironment builds a clamped Environment snapshot.
func NewEnvironment(windSpeedMph, windDirectionDeg, temperatureF float64,
	compression CompressionClass, baseLaunchAngleDeg, launchVarianceDeg float64) Environment {
	e := Environment{
		WindSpeedMph:       windSpeedMph,
		WindDirectionDeg:   windDirectionDeg,
		TemperatureF:       temperatureF,
		Compression:        compression,
		BaseLaunchAngleDeg: baseLaunchAngleDeg,
		LaunchVarianceDeg:  launchVarianceDeg,
	}
	return e.Clamped()
}

// Clamped returns a copy of the environment with every field forced into its
// documented range. Unknown compression classes fall back to mid.
func (e Environment) Clamped() Environment {
	if e.WindSpeedMph < 0 {
		e.WindSpeedMph = 0
	}
	e.WindDirectionDeg = clamp(e.WindDirectionDeg, MinWindDirectionDeg, MaxWindDirectionDeg)
	e.BaseLaunchAngleDeg = clamp(e.BaseLaunchAngleDeg, MinLaunchAngleDeg, MaxLaunchAngleDeg)
	e.LaunchVarianceDeg = clamp(e.LaunchVarianceDeg, 0, MaxLaunchVarianceDeg)

	switch e.Compression {
	case CompressionLow, CompressionMid, CompressionHigh, CompressionRange:
	default:
		e.Compression = CompressionMid
	}
	return e
}

// CompressionFactor returns the multiplicative carry factor for the ball
// class. Values are design placeholders pending range calibration.
func (e Environment) CompressionFactor() float64 {
	switch e.Compression {
	case CompressionLow:
		return 0.97
	case CompressionHigh:
		return 1.03
	case CompressionRange:
		return 0.94
	default:
		return 1.0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
