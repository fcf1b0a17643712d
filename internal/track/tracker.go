package track

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/fairway-data/launch.monitor/internal/ballistics"
	"github.com/fairway-data/launch.monitor/internal/config"
	"github.com/fairway-data/launch.monitor/internal/monitoring"
	"github.com/fairway-data/launch.monitor/internal/timeutil"
)

// State is the tracker's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateArmed      State = "armed"
	StateTracking   State = "tracking"
	StateCompleting State = "completing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// FailureReason explains a trackingFailed event.
type FailureReason string

const (
	FailureNone                 FailureReason = ""
	FailureNotCalibrated        FailureReason = "notCalibrated"
	FailureInsufficientFrames   FailureReason = "insufficientFrames"
	FailureZoneLost             FailureReason = "zoneLost"
	FailureDegenerateTrajectory FailureReason = "degenerateTrajectory"
)

// ErrNotCalibrated is returned by Arm when no usable calibration zone exists.
var ErrNotCalibrated = errors.New("tracker not calibrated")

// absentRunLimit ends a capture after this many consecutive frames without a
// ball. Three frames rides out single-frame detector dropouts.
const absentRunLimit = 3

// TrajectoryEstimator turns a captured burst into a flight estimate. It runs
// off the tracker's frame loop and must be safe for concurrent use.
type TrajectoryEstimator interface {
	Estimate(samples []ballistics.Sample, ref ballistics.PlaneReference, env ballistics.Environment) (*ballistics.Trajectory, error)
}

// SpeedSource reports the most recent radar speed reading. A disconnected
// source never vetoes an impact; it only filters when live.
type SpeedSource interface {
	Connected() bool
	SpeedMph() float64
}

// Config holds the tracker's state machine parameters. Fractional values are
// relative to the calibration zone width.
type Config struct {
	SettleToleranceFrac    float64
	SettleDwellFrames      int
	ImpactDisplacementFrac float64
	LookbackFrames         int
	MinCaptureFrames       int
	MaxCaptureFrames       int
	LowConfidenceThreshold float64
	LowConfidenceRun       int
	RadarMinSpeedMph       float64
	ZoneWidthMeters        float64
	VerticalView           bool
}

// DefaultConfig returns the compiled-in tracker parameters.
func DefaultConfig() Config {
	return Config{
		SettleToleranceFrac:    0.02,
		SettleDwellFrames:      8,
		ImpactDisplacementFrac: 0.08,
		LookbackFrames:         15,
		MinCaptureFrames:       10,
		MaxCaptureFrames:       60,
		LowConfidenceThreshold: 0.30,
		LowConfidenceRun:       5,
		RadarMinSpeedMph:       5.0,
		ZoneWidthMeters:        0.60,
		VerticalView:           false,
	}
}

// ConfigFromTuning derives tracker config from a TuningConfig.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		SettleToleranceFrac:    t.GetSettleToleranceFrac(),
		SettleDwellFrames:      t.GetSettleDwellFrames(),
		ImpactDisplacementFrac: t.GetImpactDisplacementFrac(),
		LookbackFrames:         t.GetLookbackFrames(),
		MinCaptureFrames:       t.GetMinCaptureFrames(),
		MaxCaptureFrames:       t.GetMaxCaptureFrames(),
		LowConfidenceThreshold: t.GetLowConfidenceThreshold(),
		LowConfidenceRun:       t.GetLowConfidenceRun(),
		RadarMinSpeedMph:       t.GetRadarMinSpeedMph(),
		ZoneWidthMeters:        t.GetZoneWidthMeters(),
		VerticalView:           t.GetVerticalView(),
	}
}

// Status is a point-in-time snapshot of the tracker for the API surface.
type Status struct {
	State           State                  `json:"state"`
	Failure         FailureReason          `json:"failure,omitempty"`
	Calibrated      bool                   `json:"calibrated"`
	Zone            CalibrationZone        `json:"zone"`
	CaptureFrames   int                    `json:"capture_frames"`
	ShotsTracked    uint64                 `json:"shots_tracked"`
	IngestOccupancy int                    `json:"ingest_occupancy"`
	IngestDrops     uint64                 `json:"ingest_drops"`
	RadarConnected  bool                   `json:"radar_connected"`
	RadarSpeedMph   float64                `json:"radar_speed_mph,omitempty"`
	Latest          *ballistics.Trajectory `json:"latest,omitempty"`
}

// Tracker runs the impact tracking state machine. Detections arrive through
// the ingest ring and are consumed one at a time; the estimation handoff
// happens on a separate goroutine so a slow estimate never stalls frames.
type Tracker struct {
	cfg       Config
	clock     timeutil.Clock
	ingest    *FrameIngest
	reporter  *Reporter
	estimator TrajectoryEstimator
	speed     SpeedSource // nil when no radar is attached

	mu      sync.Mutex
	state   State
	failure FailureReason
	gen     uint64 // bumped by arm/disarm/reset; stale estimates compare against it
	zone    CalibrationZone
	env     ballistics.Environment
	latest  *ballistics.Trajectory
	shots   uint64

	lookback     []Detection
	settleAnchor Detection
	settleCount  int
	settled      bool
	capture      []Detection
	lowConfRun   int
	absentRun    int
}

// New creates a Tracker. speed may be nil when no radar is attached.
func New(cfg Config, ingest *FrameIngest, reporter *Reporter, estimator TrajectoryEstimator, speed SpeedSource, clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		cfg:       cfg,
		clock:     clock,
		ingest:    ingest,
		reporter:  reporter,
		estimator: estimator,
		speed:     speed,
		state:     StateIdle,
	}
}

// Ingest returns the tracker's frame ring for the detection producer.
func (t *Tracker) Ingest() *FrameIngest {
	return t.ingest
}

// Reporter returns the tracker's event fan-out.
func (t *Tracker) Reporter() *Reporter {
	return t.reporter
}

// Run drains the ingest ring until the context is cancelled. It is the only
// consumer of the ring.
func (t *Tracker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		d, ok := t.ingest.Pop()
		if !ok {
			t.clock.Sleep(500 * time.Microsecond)
			continue
		}
		t.Consume(d)
	}
}

// Arm readies the tracker for a shot under the given playing conditions.
// Arming while a session is live (armed, tracking, or completing) is a
// no-op; ending a live session takes Disarm or Reset. Fails when no usable
// calibration exists.
func (t *Tracker) Arm(env ballistics.Environment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.zone.Usable() {
		return ErrNotCalibrated
	}
	switch t.state {
	case StateArmed, StateTracking, StateCompleting:
		// A session is live; re-arming is a no-op and must not disturb the
		// in-flight capture or a pending estimate.
		return nil
	}
	t.gen++
	t.resetShotLocked()
	t.env = env.Clamped()
	t.setStateLocked(StateArmed)
	return nil
}

// Disarm returns the tracker to idle, cancelling any in-flight capture or
// estimation. The latest trajectory is retained.
func (t *Tracker) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateIdle {
		return
	}
	t.gen++
	t.resetShotLocked()
	t.setStateLocked(StateIdle)
}

// Reset clears all shot state including the latest trajectory and failure.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.resetShotLocked()
	t.latest = nil
	t.failure = FailureNone
	if t.state != StateIdle {
		t.setStateLocked(StateIdle)
	}
}

// SetCalibration installs a new calibration zone. Invalidating the zone
// while a shot is armed or in flight fails that shot with zoneLost.
func (t *Tracker) SetCalibration(z CalibrationZone) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.zone = z
	if z.Usable() {
		return
	}
	switch t.state {
	case StateArmed, StateTracking, StateCompleting:
		t.gen++
		t.failLocked(FailureZoneLost)
	}
}

// Calibration returns the current zone.
func (t *Tracker) Calibration() CalibrationZone {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.zone
}

// Environment returns the per-shot conditions snapshot taken at arm time.
func (t *Tracker) Environment() ballistics.Environment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.env
}

// LatestTrajectory returns the most recent successful estimate, or nil.
func (t *Tracker) LatestTrajectory() *ballistics.Trajectory {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Status returns a snapshot for the API surface.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Status{
		State:           t.state,
		Failure:         t.failure,
		Calibrated:      t.zone.Usable(),
		Zone:            t.zone,
		CaptureFrames:   len(t.capture),
		ShotsTracked:    t.shots,
		IngestOccupancy: t.ingest.Occupancy(),
		IngestDrops:     t.ingest.Drops(),
		Latest:          t.latest,
	}
	if t.speed != nil && t.speed.Connected() {
		s.RadarConnected = true
		s.RadarSpeedMph = t.speed.SpeedMph()
	}
	return s
}

// Consume feeds one detection through the state machine.
func (t *Tracker) Consume(d Detection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateArmed:
		t.consumeArmedLocked(d)
	case StateTracking:
		t.consumeTrackingLocked(d)
	default:
		// Frames outside an active shot are dropped on the floor.
	}
}

func (t *Tracker) consumeArmedLocked(d Detection) {
	t.pushLookbackLocked(d)

	tol := t.cfg.SettleToleranceFrac * t.zone.Width()
	impact := t.cfg.ImpactDisplacementFrac * t.zone.Width()

	if !t.settled {
		// Waiting for the ball to come to rest inside the zone.
		if !d.Present || !t.zone.Contains(d.X, d.Y) {
			t.settleCount = 0
			return
		}
		if t.settleCount == 0 || dist(d, t.settleAnchor) > tol {
			t.settleAnchor = d
			t.settleCount = 1
			return
		}
		t.settleCount++
		if t.settleCount >= t.cfg.SettleDwellFrames {
			t.settled = true
			monitoring.Logf("track: ball settled at (%.3f, %.3f)", t.settleAnchor.X, t.settleAnchor.Y)
		}
		return
	}

	// Settled. An impact shows up as a displacement spike away from the
	// rest position, or as the ball vanishing outright between frames.
	struck := false
	if d.Present && dist(d, t.settleAnchor) > impact {
		struck = true
	} else if !d.Present {
		t.absentRun++
		if t.absentRun >= 2 {
			struck = true
		}
	} else {
		t.absentRun = 0
	}
	if !struck {
		return
	}
	t.absentRun = 0

	// Radar veto. A connected radar reading below the strike floor means
	// the displacement was noise (shadow, club waggle), not a hit.
	if t.speed != nil && t.speed.Connected() && t.speed.SpeedMph() < t.cfg.RadarMinSpeedMph {
		t.settled = false
		t.settleCount = 0
		return
	}

	t.beginCaptureLocked(tol)
}

// beginCaptureLocked transitions to tracking and backdates the capture to
// the first lookback frame that had already left the rest position, so the
// frames between the true strike and its detection are not lost.
func (t *Tracker) beginCaptureLocked(tol float64) {
	start := len(t.lookback)
	for i, f := range t.lookback {
		if f.Present && dist(f, t.settleAnchor) > tol {
			start = i
			break
		}
	}
	t.capture = t.capture[:0]
	for _, f := range t.lookback[start:] {
		if f.Present {
			t.capture = append(t.capture, f)
		}
	}
	t.lowConfRun = 0
	t.absentRun = 0

	t.setStateLocked(StateTracking)
	t.reporter.Publish(Event{
		Kind:      EventHitDetected,
		State:     t.state,
		Frames:    len(t.capture),
		X:         t.settleAnchor.X,
		Y:         t.settleAnchor.Y,
		Timestamp: t.clock.Now(),
	})
	monitoring.Logf("track: hit detected, %d backdated frames", len(t.capture))
}

func (t *Tracker) consumeTrackingLocked(d Detection) {
	if !t.zone.Usable() {
		t.gen++
		t.failLocked(FailureZoneLost)
		return
	}

	if d.Present {
		t.absentRun = 0
		t.capture = append(t.capture, d)
		if d.Confidence < t.cfg.LowConfidenceThreshold {
			t.lowConfRun++
		} else {
			t.lowConfRun = 0
		}
	} else {
		t.absentRun++
	}

	switch {
	case t.absentRun >= absentRunLimit:
		t.finishCaptureLocked()
	case t.lowConfRun >= t.cfg.LowConfidenceRun:
		// A sustained low-confidence run means the detector lost the real
		// ball. Drop the unreliable tail and work with what preceded it.
		t.capture = t.capture[:len(t.capture)-t.lowConfRun]
		t.finishCaptureLocked()
	case len(t.capture) >= t.cfg.MaxCaptureFrames:
		t.finishCaptureLocked()
	}
}

func (t *Tracker) finishCaptureLocked() {
	if len(t.capture) < t.cfg.MinCaptureFrames {
		t.failLocked(FailureInsufficientFrames)
		return
	}

	t.setStateLocked(StateCompleting)

	samples := toSamples(t.capture)
	ref := ballistics.PlaneReference{
		MetersPerUnit: t.cfg.ZoneWidthMeters / t.zone.Width(),
		VerticalView:  t.cfg.VerticalView,
	}
	gen := t.gen
	env := t.env
	go t.runEstimate(gen, samples, ref, env)
}

// runEstimate performs the estimation handoff off the frame path. The
// generation snapshot taken at handoff suppresses the result if the shot
// was cancelled in the meantime.
func (t *Tracker) runEstimate(gen uint64, samples []ballistics.Sample, ref ballistics.PlaneReference, env ballistics.Environment) {
	traj, err := t.estimator.Estimate(samples, ref, env)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.state != StateCompleting {
		monitoring.Logf("track: dropping stale estimate (gen %d)", gen)
		return
	}
	if err != nil {
		if !errors.Is(err, ballistics.ErrDegenerateTrajectory) {
			monitoring.Logf("track: estimate error: %v", err)
		}
		t.failLocked(FailureDegenerateTrajectory)
		return
	}

	t.latest = traj
	t.shots++
	t.failure = FailureNone

	// trackingComplete announces a successfully estimated burst; a burst the
	// estimator rejects only fails, it never completes.
	t.reporter.Publish(Event{
		Kind:      EventTrackingComplete,
		State:     t.state,
		Frames:    len(samples),
		Timestamp: t.clock.Now(),
	})
	t.setStateLocked(StateComplete)
	t.reporter.Publish(Event{
		Kind:       EventTrajectoryReady,
		State:      t.state,
		Trajectory: traj,
		Frames:     len(samples),
		Timestamp:  t.clock.Now(),
	})
	monitoring.Logf("track: trajectory ready, carry %.1f yds", traj.CarryDistanceYards)
	t.resetShotLocked()
	t.setStateLocked(StateIdle)
}

func (t *Tracker) failLocked(reason FailureReason) {
	t.failure = reason
	t.setStateLocked(StateFailed)
	t.reporter.Publish(Event{
		Kind:      EventTrackingFailed,
		State:     t.state,
		Failure:   reason,
		Frames:    len(t.capture),
		Timestamp: t.clock.Now(),
	})
	monitoring.Logf("track: tracking failed: %s", reason)
	t.resetShotLocked()
	t.setStateLocked(StateIdle)
}

func (t *Tracker) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	t.reporter.Publish(Event{
		Kind:      EventStateChanged,
		State:     s,
		Timestamp: t.clock.Now(),
	})
}

func (t *Tracker) resetShotLocked() {
	t.lookback = t.lookback[:0]
	t.capture = t.capture[:0]
	t.settleCount = 0
	t.settled = false
	t.lowConfRun = 0
	t.absentRun = 0
}

func (t *Tracker) pushLookbackLocked(d Detection) {
	if len(t.lookback) >= t.cfg.LookbackFrames {
		copy(t.lookback, t.lookback[1:])
		t.lookback = t.lookback[:len(t.lookback)-1]
	}
	t.lookback = append(t.lookback, d)
}

// toSamples rebases capture timestamps onto the first frame and converts to
// estimator samples.
func toSamples(capture []Detection) []ballistics.Sample {
	if len(capture) == 0 {
		return nil
	}
	t0 := capture[0].Timestamp
	out := make([]ballistics.Sample, len(capture))
	for i, d := range capture {
		out[i] = ballistics.Sample{
			T:          float64(d.Timestamp-t0) / float64(time.Second),
			X:          d.X,
			Y:          d.Y,
			Confidence: d.Confidence,
		}
	}
	return out
}

func dist(a, b Detection) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
