package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be used
// for both startup configuration and runtime inspection. The impact and
// settle thresholds below are design placeholders pending range calibration
// data; everything that shapes a shot is tunable here rather than hard-coded.
type TuningConfig struct {
	// Tracker params
	SettleToleranceFrac    *float64 `json:"settle_tolerance_frac,omitempty"`    // fraction of zone width
	SettleDwellFrames      *int     `json:"settle_dwell_frames,omitempty"`      // consecutive stable detections
	ImpactDisplacementFrac *float64 `json:"impact_displacement_frac,omitempty"` // fraction of zone width per frame interval
	LookbackFrames         *int     `json:"lookback_frames,omitempty"`          // pre-impact frames kept for backdating
	MinCaptureFrames       *int     `json:"min_capture_frames,omitempty"`
	MaxCaptureFrames       *int     `json:"max_capture_frames,omitempty"`
	LowConfidenceThreshold *float64 `json:"low_confidence_threshold,omitempty"`
	LowConfidenceRun       *int     `json:"low_confidence_run,omitempty"` // consecutive low-confidence frames = ball gone
	RadarMinSpeedMph       *float64 `json:"radar_min_speed_mph,omitempty"`

	// Estimator params
	ZoneWidthMeters       *float64 `json:"zone_width_meters,omitempty"` // physical width of the calibration zone
	MinContactSpeedMps    *float64 `json:"min_contact_speed_mps,omitempty"`
	FitSamples            *int     `json:"fit_samples,omitempty"` // post-impact samples used for the launch fit
	MinFitConfidence      *float64 `json:"min_fit_confidence,omitempty"`
	VerticalView          *bool    `json:"vertical_view,omitempty"` // camera face-on (vertical plane) vs overhead
	DragCoefficient       *float64 `json:"drag_coefficient,omitempty"`
	TempGainPerDegF       *float64 `json:"temp_gain_per_degf,omitempty"`
	DistanceFactorFloor   *float64 `json:"distance_factor_floor,omitempty"`
	DistanceFactorCeiling *float64 `json:"distance_factor_ceiling,omitempty"`
	HeadwindYardsPerMph   *float64 `json:"headwind_yards_per_mph,omitempty"`
	CrosswindYardsPerMph  *float64 `json:"crosswind_yards_per_mph,omitempty"`
	FlightSampleSeconds   *float64 `json:"flight_sample_seconds,omitempty"`

	// Ingest params
	IngestCapacity *int `json:"ingest_capacity,omitempty"` // ring size; >= max capture + lookback
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, frac := range map[string]*float64{
		"settle_tolerance_frac":    c.SettleToleranceFrac,
		"impact_displacement_frac": c.ImpactDisplacementFrac,
		"low_confidence_threshold": c.LowConfidenceThreshold,
		"min_fit_confidence":       c.MinFitConfidence,
	} {
		if frac != nil && (*frac < 0 || *frac > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *frac)
		}
	}

	for name, count := range map[string]*int{
		"settle_dwell_frames": c.SettleDwellFrames,
		"lookback_frames":     c.LookbackFrames,
		"min_capture_frames":  c.MinCaptureFrames,
		"max_capture_frames":  c.MaxCaptureFrames,
		"low_confidence_run":  c.LowConfidenceRun,
		"fit_samples":         c.FitSamples,
		"ingest_capacity":     c.IngestCapacity,
	} {
		if count != nil && *count < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *count)
		}
	}

	if c.MinCaptureFrames != nil && c.MaxCaptureFrames != nil &&
		*c.MinCaptureFrames > *c.MaxCaptureFrames {
		return fmt.Errorf("min_capture_frames (%d) must not exceed max_capture_frames (%d)",
			*c.MinCaptureFrames, *c.MaxCaptureFrames)
	}

	if c.ZoneWidthMeters != nil && *c.ZoneWidthMeters <= 0 {
		return fmt.Errorf("zone_width_meters must be positive, got %f", *c.ZoneWidthMeters)
	}

	if c.DistanceFactorFloor != nil && c.DistanceFactorCeiling != nil &&
		*c.DistanceFactorFloor > *c.DistanceFactorCeiling {
		return fmt.Errorf("distance_factor_floor (%f) must not exceed distance_factor_ceiling (%f)",
			*c.DistanceFactorFloor, *c.DistanceFactorCeiling)
	}

	return nil
}

// GetSettleToleranceFrac returns the settle_tolerance_frac value or the default.
func (c *TuningConfig) GetSettleToleranceFrac() float64 {
	if c.SettleToleranceFrac == nil {
		return 0.02 // 2% of zone width
	}
	return *c.SettleToleranceFrac
}

// GetSettleDwellFrames returns the settle_dwell_frames value or the default.
func (c *TuningConfig) GetSettleDwellFrames() int {
	if c.SettleDwellFrames == nil {
		return 8
	}
	return *c.SettleDwellFrames
}

// GetImpactDisplacementFrac returns the impact_displacement_frac value or the default.
func (c *TuningConfig) GetImpactDisplacementFrac() float64 {
	if c.ImpactDisplacementFrac == nil {
		return 0.08
	}
	return *c.ImpactDisplacementFrac
}

// GetLookbackFrames returns the lookback_frames value or the default.
func (c *TuningConfig) GetLookbackFrames() int {
	if c.LookbackFrames == nil {
		return 15
	}
	return *c.LookbackFrames
}

// GetMinCaptureFrames returns the min_capture_frames value or the default.
func (c *TuningConfig) GetMinCaptureFrames() int {
	if c.MinCaptureFrames == nil {
		return 10
	}
	return *c.MinCaptureFrames
}

// GetMaxCaptureFrames returns the max_capture_frames value or the default.
func (c *TuningConfig) GetMaxCaptureFrames() int {
	if c.MaxCaptureFrames == nil {
		return 60 // ~320ms at 187fps
	}
	return *c.MaxCaptureFrames
}

// GetLowConfidenceThreshold returns the low_confidence_threshold value or the default.
func (c *TuningConfig) GetLowConfidenceThreshold() float64 {
	if c.LowConfidenceThreshold == nil {
		return 0.30
	}
	return *c.LowConfidenceThreshold
}

// GetLowConfidenceRun returns the low_confidence_run value or the default.
func (c *TuningConfig) GetLowConfidenceRun() int {
	if c.LowConfidenceRun == nil {
		return 5
	}
	return *c.LowConfidenceRun
}

// GetRadarMinSpeedMph returns the radar_min_speed_mph value or the default.
func (c *TuningConfig) GetRadarMinSpeedMph() float64 {
	if c.RadarMinSpeedMph == nil {
		return 5.0
	}
	return *c.RadarMinSpeedMph
}

// GetZoneWidthMeters returns the zone_width_meters value or the default.
func (c *TuningConfig) GetZoneWidthMeters() float64 {
	if c.ZoneWidthMeters == nil {
		return 0.60
	}
	return *c.ZoneWidthMeters
}

// GetMinContactSpeedMps returns the min_contact_speed_mps value or the default.
func (c *TuningConfig) GetMinContactSpeedMps() float64 {
	if c.MinContactSpeedMps == nil {
		return 10.0 // ~22 mph; anything slower is not a struck ball
	}
	return *c.MinContactSpeedMps
}

// GetFitSamples returns the fit_samples value or the default.
func (c *TuningConfig) GetFitSamples() int {
	if c.FitSamples == nil {
		return 8
	}
	return *c.FitSamples
}

// GetMinFitConfidence returns the min_fit_confidence value or the default.
func (c *TuningConfig) GetMinFitConfidence() float64 {
	if c.MinFitConfidence == nil {
		return 0.5
	}
	return *c.MinFitConfidence
}

// GetVerticalView returns the vertical_view value or the default.
func (c *TuningConfig) GetVerticalView() bool {
	if c.VerticalView == nil {
		return false // overhead camera watching the hitting zone
	}
	return *c.VerticalView
}

// GetDragCoefficient returns the drag_coefficient value or the default.
func (c *TuningConfig) GetDragCoefficient() float64 {
	if c.DragCoefficient == nil {
		return 0.0035
	}
	return *c.DragCoefficient
}

// GetTempGainPerDegF returns the temp_gain_per_degf value or the default.
func (c *TuningConfig) GetTempGainPerDegF() float64 {
	if c.TempGainPerDegF == nil {
		return 0.0033 // roughly 2-5 yards per 10 degrees F on a mid-iron carry
	}
	return *c.TempGainPerDegF
}

// GetDistanceFactorFloor returns the distance_factor_floor value or the default.
func (c *TuningConfig) GetDistanceFactorFloor() float64 {
	if c.DistanceFactorFloor == nil {
		return 0.85
	}
	return *c.DistanceFactorFloor
}

// GetDistanceFactorCeiling returns the distance_factor_ceiling value or the default.
func (c *TuningConfig) GetDistanceFactorCeiling() float64 {
	if c.DistanceFactorCeiling == nil {
		return 1.15
	}
	return *c.DistanceFactorCeiling
}

// GetHeadwindYardsPerMph returns the headwind_yards_per_mph value or the default.
func (c *TuningConfig) GetHeadwindYardsPerMph() float64 {
	if c.HeadwindYardsPerMph == nil {
		return 0.9
	}
	return *c.HeadwindYardsPerMph
}

// GetCrosswindYardsPerMph returns the crosswind_yards_per_mph value or the default.
func (c *TuningConfig) GetCrosswindYardsPerMph() float64 {
	if c.CrosswindYardsPerMph == nil {
		return 0.45
	}
	return *c.CrosswindYardsPerMph
}

// GetFlightSampleSeconds returns the flight_sample_seconds value or the default.
func (c *TuningConfig) GetFlightSampleSeconds() float64 {
	if c.FlightSampleSeconds == nil {
		return 0.05
	}
	return *c.FlightSampleSeconds
}

// GetIngestCapacity returns the ingest_capacity value or the default.
func (c *TuningConfig) GetIngestCapacity() int {
	if c.IngestCapacity == nil {
		return 128 // max capture window + lookback margin, rounded up
	}
	return *c.IngestCapacity
}
