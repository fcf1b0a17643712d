package ballistics

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/fairway-data/launch.monitor/internal/config"
	"github.com/fairway-data/launch.monitor/internal/units"
)

// ErrDegenerateTrajectory is returned when a captured burst cannot support a
// plausible flight estimate: too few usable samples, or a fitted launch speed
// below anything a struck ball would show.
var ErrDegenerateTrajectory = errors.New("degenerate trajectory")

// Gravity is the gravitational acceleration used by the flight model (m/s²).
const Gravity = 9.81

// Sample is one observation handed to the estimator: time since the first
// captured frame and the ball position in normalized camera coordinates.
type Sample struct {
	T          float64 // seconds since the first sample in the burst
	X          float64 // normalized [0,1], downrange axis
	Y          float64 // normalized [0,1], image-down axis
	Confidence float64 // [0,1]
}

// PlaneReference maps normalized camera coordinates onto metric ground-plane
// coordinates using the calibration zone extents as the metric reference.
type PlaneReference struct {
	// MetersPerUnit converts one normalized unit to meters.
	MetersPerUnit float64
	// VerticalView is true when the camera watches the hitting zone face-on,
	// so the image Y axis observes launch height. When false (overhead
	// mount) the image Y axis observes lateral movement and the launch
	// angle comes from the environment fallback.
	VerticalView bool
}

// FlightSample is one discretized point on the estimated flight path.
// X is downrange, Y lateral (positive right), Z height; all in yards.
type FlightSample struct {
	T float64 `json:"t"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Trajectory is the immutable result of a completed estimation.
type Trajectory struct {
	CarryDistanceYards float64        `json:"carry_distance_yards"`
	ApexHeightYards    float64        `json:"apex_height_yards"`
	LandingOffsetYards float64        `json:"landing_offset_yards"`
	LaunchAngleDeg     float64        `json:"launch_angle_deg"`
	SidespinSign       int            `json:"sidespin_sign"` // +1 right, -1 left, 0 straight
	BallSpeedMps       float64        `json:"ball_speed_mps"`
	CameraAngle        bool           `json:"camera_angle"` // launch angle measured rather than simulated
	FlightSamples      []FlightSample `json:"flight_samples"`
}

// EstimatorConfig holds the tunable constants of the flight model.
type EstimatorConfig struct {
	MinContactSpeedMps   float64 // fitted speeds below this are rejected as degenerate
	MinUsableSamples     int     // high-confidence samples required for a fit
	FitSamples           int     // post-impact samples used for the launch fit
	MinFitConfidence     float64 // confidence cutoff for usable samples
	DragCoefficient      float64 // quadratic drag, per meter
	TempGainPerDegF      float64 // distance factor slope around the 75F baseline
	DistanceFactorFloor  float64
	DistanceFactorCeil   float64
	HeadwindYardsPerMph  float64 // carry change per mph of tail component
	CrosswindYardsPerMph float64 // lateral drift per mph of cross component
	FlightSampleSeconds  float64 // discretization interval of the output path
}

// DefaultEstimatorConfig returns the compiled-in model constants.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		MinContactSpeedMps:   10.0,
		MinUsableSamples:     3,
		FitSamples:           8,
		MinFitConfidence:     0.5,
		DragCoefficient:      0.0035,
		TempGainPerDegF:      0.0033,
		DistanceFactorFloor:  0.85,
		DistanceFactorCeil:   1.15,
		HeadwindYardsPerMph:  0.9,
		CrosswindYardsPerMph: 0.45,
		FlightSampleSeconds:  0.05,
	}
}

// EstimatorConfigFromTuning derives estimator config from a TuningConfig.
func EstimatorConfigFromTuning(t *config.TuningConfig) EstimatorConfig {
	return EstimatorConfig{
		MinContactSpeedMps:   t.GetMinContactSpeedMps(),
		MinUsableSamples:     3,
		FitSamples:           t.GetFitSamples(),
		MinFitConfidence:     t.GetMinFitConfidence(),
		DragCoefficient:      t.GetDragCoefficient(),
		TempGainPerDegF:      t.GetTempGainPerDegF(),
		DistanceFactorFloor:  t.GetDistanceFactorFloor(),
		DistanceFactorCeil:   t.GetDistanceFactorCeiling(),
		HeadwindYardsPerMph:  t.GetHeadwindYardsPerMph(),
		CrosswindYardsPerMph: t.GetCrosswindYardsPerMph(),
		FlightSampleSeconds:  t.GetFlightSampleSeconds(),
	}
}

// Estimator converts captured bursts into trajectories. It holds no mutable
// state; identical inputs always produce bit-identical output.
type Estimator struct {
	cfg EstimatorConfig
}

// NewEstimator creates an Estimator with the given configuration.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// integrationStep is the fixed step of the forward flight integration.
// Fixed so that replays of the same burst are reproducible.
const integrationStep = 0.005

// Estimate fits the launch state from the burst and integrates the flight
// model forward. Returns ErrDegenerateTrajectory when the burst cannot
// support a plausible estimate.
func (e *Estimator) Estimate(samples []Sample, ref PlaneReference, env Environment) (*Trajectory, error) {
	env = env.Clamped()

	usable := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Confidence >= e.cfg.MinFitConfidence {
			usable = append(usable, s)
		}
	}
	if len(usable) < e.cfg.MinUsableSamples {
		return nil, ErrDegenerateTrajectory
	}

	// The early portion of the burst is the least noisy: later samples are
	// foreshortened and occluded more often, so only the first K usable
	// samples feed the launch fit.
	k := e.cfg.FitSamples
	if k < e.cfg.MinUsableSamples {
		k = e.cfg.MinUsableSamples
	}
	if k > len(usable) {
		k = len(usable)
	}
	fit := usable[:k]

	vPrimary, vSecondary := fitVelocity(fit, ref.MetersPerUnit)
	speed := math.Hypot(vPrimary, vSecondary)
	if !isFinite(speed) || speed < e.cfg.MinContactSpeedMps {
		return nil, ErrDegenerateTrajectory
	}

	// Resolve the launch angle. A face-on camera measures it directly; an
	// overhead camera cannot, so the environment baseline stands in, widened
	// deterministically by half the configured variance.
	var launchAngleDeg float64
	var lateralVel float64
	cameraAngle := false
	if ref.VerticalView {
		launchAngleDeg = math.Atan2(vSecondary, math.Abs(vPrimary)) * 180 / math.Pi
		if launchAngleDeg > 0.5 && launchAngleDeg < 60 {
			cameraAngle = true
		}
	} else {
		lateralVel = vSecondary
	}
	if !cameraAngle {
		launchAngleDeg = clamp(env.BaseLaunchAngleDeg+0.5*env.LaunchVarianceDeg,
			MinLaunchAngleDeg, MaxLaunchAngleDeg+MaxLaunchVarianceDeg)
	}

	traj := e.integrate(speed, launchAngleDeg)

	// Temperature and compression scale carry multiplicatively around the
	// 75F baseline, clamped to the modeled floor/ceiling.
	factor := env.CompressionFactor() * (1 + e.cfg.TempGainPerDegF*(env.TemperatureF-TempBaselineF))
	factor = clamp(factor, e.cfg.DistanceFactorFloor, e.cfg.DistanceFactorCeil)

	carry := traj.carryMeters * factor

	// Wind decomposes against the target line: the tail component adds or
	// removes carry, the cross component drifts the landing point sideways.
	dirRad := env.WindDirectionDeg * math.Pi / 180
	tailMph := env.WindSpeedMph * math.Cos(dirRad)
	crossMph := env.WindSpeedMph * math.Sin(dirRad)

	carryYards := units.MetersToYards(carry) + e.cfg.HeadwindYardsPerMph*tailMph
	if carryYards < 0 {
		carryYards = 0
	}

	lateralYards := e.cfg.CrosswindYardsPerMph * crossMph
	sidespinSign := 0
	if !ref.VerticalView && math.Abs(vPrimary) > 0 {
		// Straight-line geometric offset from the fitted lateral velocity.
		lateralYards += carryYards * lateralVel / math.Abs(vPrimary)
		if lateralVel > 0 {
			sidespinSign = 1
		} else if lateralVel < 0 {
			sidespinSign = -1
		}
	}

	result := &Trajectory{
		CarryDistanceYards: carryYards,
		ApexHeightYards:    units.MetersToYards(traj.apexMeters),
		LandingOffsetYards: lateralYards,
		LaunchAngleDeg:     launchAngleDeg,
		SidespinSign:       sidespinSign,
		BallSpeedMps:       speed,
		CameraAngle:        cameraAngle,
		FlightSamples:      e.flightSamples(traj, carryYards, lateralYards),
	}
	return result, nil
}

// fitVelocity runs a least-squares linear fit of position against time for
// both camera axes over the fit window and scales the slopes to m/s. The
// image Y axis points down, so the secondary axis is negated to give an
// up/right-positive velocity.
func fitVelocity(fit []Sample, metersPerUnit float64) (vPrimary, vSecondary float64) {
	ts := make([]float64, len(fit))
	xs := make([]float64, len(fit))
	ys := make([]float64, len(fit))
	for i, s := range fit {
		ts[i] = s.T
		xs[i] = s.X
		ys[i] = s.Y
	}

	_, slopeX := stat.LinearRegression(ts, xs, nil, false)
	_, slopeY := stat.LinearRegression(ts, ys, nil, false)

	return slopeX * metersPerUnit, -slopeY * metersPerUnit
}

// flightPath holds the raw output of the forward integration in meters.
type flightPath struct {
	carryMeters float64
	apexMeters  float64
	totalTime   float64
	points      []FlightSample // X in meters at this stage, Z in meters, Y zero
}

// integrate runs the drag-and-gravity model forward from the fitted launch
// state until the ball returns to the ground.
func (e *Estimator) integrate(speed, launchAngleDeg float64) flightPath {
	angle := launchAngleDeg * math.Pi / 180
	vx := speed * math.Cos(angle)
	vz := speed * math.Sin(angle)

	var x, z, t, apex float64
	var points []FlightSample
	nextSample := 0.0

	for {
		if t >= nextSample {
			points = append(points, FlightSample{T: t, X: x, Z: z})
			nextSample += e.cfg.FlightSampleSeconds
		}

		v := math.Hypot(vx, vz)
		ax := -e.cfg.DragCoefficient * v * vx
		az := -Gravity - e.cfg.DragCoefficient*v*vz

		vx += ax * integrationStep
		vz += az * integrationStep
		x += vx * integrationStep
		z += vz * integrationStep
		t += integrationStep

		if z > apex {
			apex = z
		}
		if z <= 0 && t > integrationStep {
			break
		}
		if t > 20 { // guard against runaway inputs
			break
		}
	}

	points = append(points, FlightSample{T: t, X: x, Z: 0})
	return flightPath{carryMeters: x, apexMeters: apex, totalTime: t, points: points}
}

// flightSamples rescales the integrated path so the samples land exactly at
// the wind- and factor-adjusted carry, and ramps the lateral offset linearly
// across the flight.
func (e *Estimator) flightSamples(path flightPath, carryYards, lateralYards float64) []FlightSample {
	if path.carryMeters <= 0 || path.totalTime <= 0 {
		return nil
	}
	scale := carryYards / units.MetersToYards(path.carryMeters)

	out := make([]FlightSample, len(path.points))
	for i, p := range path.points {
		out[i] = FlightSample{
			T: p.T,
			X: units.MetersToYards(p.X) * scale,
			Y: lateralYards * (p.T / path.totalTime),
			Z: units.MetersToYards(p.Z),
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
