// Package track implements the impact tracking engine: it consumes per-frame
// ball detections, runs the arm/settle/impact/capture state machine, and hands
// completed bursts to a trajectory estimator off the frame path.
package track

// Detection is one camera frame's worth of ball observation. Coordinates are
// normalized to [0,1] in the camera frame; Timestamp is nanoseconds on the
// producer's monotonic clock.
type Detection struct {
	Timestamp  int64   `json:"ts"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Present    bool    `json:"present"`
}

// CalibrationZone describes the hitting area in normalized camera
// coordinates. Both flags must be set before the tracker will arm: the zone
// rectangle must be drawn and a resting ball must have been registered
// inside it.
type CalibrationZone struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`

	ZoneDefined    bool `json:"zone_defined"`
	BallCalibrated bool `json:"ball_calibrated"`
}

// Usable reports whether the zone can support tracking.
func (z CalibrationZone) Usable() bool {
	return z.ZoneDefined && z.BallCalibrated && z.MaxX > z.MinX && z.MaxY > z.MinY
}

// Width returns the zone extent along the X axis in normalized units.
func (z CalibrationZone) Width() float64 {
	return z.MaxX - z.MinX
}

// Contains reports whether the point lies inside the zone rectangle.
func (z CalibrationZone) Contains(x, y float64) bool {
	return x >= z.MinX && x <= z.MaxX && y >= z.MinY && y <= z.MaxY
}
