package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fairway-data/launch.monitor/internal/ballistics"
	"github.com/fairway-data/launch.monitor/internal/chart"
	"github.com/fairway-data/launch.monitor/internal/db"
	"github.com/fairway-data/launch.monitor/internal/monitoring"
	"github.com/fairway-data/launch.monitor/internal/track"
	"github.com/fairway-data/launch.monitor/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	tracker *track.Tracker
	db      *db.DB
	units   string
	profile string
}

// NewServer creates the HTTP API over the tracker and shot store. units is
// the display unit for ball speed; profile tags recorded shots.
func NewServer(tracker *track.Tracker, database *db.DB, speedUnits, profile string) *Server {
	return &Server{
		tracker: tracker,
		db:      database,
		units:   speedUnits,
		profile: profile,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/arm", s.armHandler)
	mux.HandleFunc("/api/disarm", s.disarmHandler)
	mux.HandleFunc("/api/reset", s.resetHandler)
	mux.HandleFunc("/api/calibration", s.calibrationHandler)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/shots", s.shotsHandler)
	mux.HandleFunc("/api/trajectory/latest", s.showLatestTrajectory)
	mux.HandleFunc("/api/events", s.streamEvents)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/debug/flightpath", s.showFlightPath)
	return mux
}

// Run records completed shots as they are reported, until the context is
// cancelled. It must run for shot history to be persisted.
func (s *Server) Run(ctx context.Context) error {
	id, events := s.tracker.Reporter().Subscribe()
	defer s.tracker.Reporter().Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind != track.EventTrajectoryReady || ev.Trajectory == nil {
				continue
			}
			shot := db.NewShot(s.profile, ev.Trajectory, s.tracker.Environment(), ev.Frames)
			if err := s.db.RecordShot(shot); err != nil {
				monitoring.Logf("api: failed to record shot: %v", err)
			}
		}
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// armRequest carries the playing conditions for a shot.
type armRequest struct {
	WindSpeedMph       float64 `json:"wind_speed_mph"`
	WindDirectionDeg   float64 `json:"wind_direction_deg"`
	TemperatureF       float64 `json:"temperature_f"`
	Compression        string  `json:"compression"`
	BaseLaunchAngleDeg float64 `json:"base_launch_angle_deg"`
	LaunchVarianceDeg  float64 `json:"launch_variance_deg"`
}

func (s *Server) armHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req armRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid arm request: %v", err))
		return
	}

	env := ballistics.NewEnvironment(
		req.WindSpeedMph, req.WindDirectionDeg, req.TemperatureF,
		ballistics.CompressionClass(req.Compression),
		req.BaseLaunchAngleDeg, req.LaunchVarianceDeg,
	)
	if err := s.tracker.Arm(env); err != nil {
		if errors.Is(err, track.ErrNotCalibrated) {
			s.writeJSONError(w, http.StatusConflict, "Tracker is not calibrated")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to arm: %v", err))
		return
	}

	json.NewEncoder(w).Encode(s.tracker.Status())
}

func (s *Server) disarmHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.tracker.Disarm()
	json.NewEncoder(w).Encode(s.tracker.Status())
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.tracker.Reset()
	json.NewEncoder(w).Encode(s.tracker.Status())
}

func (s *Server) calibrationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(s.tracker.Calibration())

	case http.MethodPost:
		var zone track.CalibrationZone
		if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid calibration: %v", err))
			return
		}
		s.tracker.SetCalibration(zone)
		json.NewEncoder(w).Encode(s.tracker.Calibration())

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.tracker.Status()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
	}
}

func (s *Server) shotsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		profile := r.URL.Query().Get("profile")
		if profile == "" {
			profile = s.profile
		}
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			parsed, err := strconv.Atoi(l)
			if err != nil || parsed < 1 {
				s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
				return
			}
			limit = parsed
		}

		shots, err := s.db.Shots(profile, limit)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to retrieve shots: %v", err))
			return
		}

		// Speeds are stored in m/s; convert for display.
		for i := range shots {
			shots[i].BallSpeedMps = units.ConvertSpeed(shots[i].BallSpeedMps, s.units)
		}

		if err := json.NewEncoder(w).Encode(shots); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write shots")
		}

	case http.MethodDelete:
		if err := s.db.ClearShots(r.URL.Query().Get("profile")); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to clear shots: %v", err))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) showLatestTrajectory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	traj := s.tracker.LatestTrajectory()
	if traj == nil {
		s.writeJSONError(w, http.StatusNotFound, "No trajectory available")
		return
	}

	resp := struct {
		*ballistics.Trajectory
		BallSpeed  float64 `json:"ball_speed"`
		SpeedUnits string  `json:"speed_units"`
	}{
		Trajectory: traj,
		BallSpeed:  units.ConvertSpeed(traj.BallSpeedMps, s.units),
		SpeedUnits: s.units,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write trajectory")
	}
}

// streamEvents issues Server-Sent Events for each tracker notification.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, events := s.tracker.Reporter().Subscribe()
	defer s.tracker.Reporter().Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"units":   s.units,
		"profile": s.profile,
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
	}
}

func (s *Server) showFlightPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	traj := s.tracker.LatestTrajectory()
	if traj == nil {
		http.Error(w, "No trajectory available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chart.RenderFlightPath(w, traj); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render chart: %v", err), http.StatusInternalServerError)
	}
}
