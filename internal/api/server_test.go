package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.monitor/internal/ballistics"
	"github.com/fairway-data/launch.monitor/internal/db"
	"github.com/fairway-data/launch.monitor/internal/track"
	"github.com/fairway-data/launch.monitor/internal/units"
)

type stubEstimator struct {
	traj *ballistics.Trajectory
}

func (e *stubEstimator) Estimate(samples []ballistics.Sample, ref ballistics.PlaneReference, env ballistics.Environment) (*ballistics.Trajectory, error) {
	return e.traj, nil
}

func newTestServer(t *testing.T) (*Server, *track.Tracker) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "shots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	tracker := track.New(
		track.DefaultConfig(),
		track.NewFrameIngest(16),
		track.NewReporter(),
		&stubEstimator{traj: &ballistics.Trajectory{CarryDistanceYards: 150}},
		nil,
		nil,
	)
	return NewServer(tracker, database, units.MPH, "default"), tracker
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("{}")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestStatusStartsIdle(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	mux := server.ServeMux()

	var status track.Status
	rec := doJSON(t, mux, http.MethodGet, "/api/status", "", &status)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, track.StateIdle, status.State)
	assert.False(t, status.Calibrated)
}

func TestArmRequiresCalibration(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	mux := server.ServeMux()

	rec := doJSON(t, mux, http.MethodPost, "/api/arm", `{"temperature_f": 70}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "not calibrated")
}

func TestCalibrateThenArm(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	mux := server.ServeMux()

	zone := `{"min_x": 0.2, "min_y": 0.3, "max_x": 0.8, "max_y": 0.7, "zone_defined": true, "ball_calibrated": true}`
	var got track.CalibrationZone
	rec := doJSON(t, mux, http.MethodPost, "/api/calibration", zone, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, got.Usable())
	assert.Equal(t, 0.2, got.MinX)

	var fetched track.CalibrationZone
	rec = doJSON(t, mux, http.MethodGet, "/api/calibration", "", &fetched)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, got, fetched)

	var status track.Status
	rec = doJSON(t, mux, http.MethodPost, "/api/arm",
		`{"wind_speed_mph": 5, "temperature_f": 70, "compression": "mid", "base_launch_angle_deg": 14}`, &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, track.StateArmed, status.State)
	assert.True(t, status.Calibrated)
}

func TestDisarmReturnsToIdle(t *testing.T) {
	t.Parallel()

	server, tracker := newTestServer(t)
	mux := server.ServeMux()

	tracker.SetCalibration(track.CalibrationZone{
		MinX: 0.2, MinY: 0.3, MaxX: 0.8, MaxY: 0.7,
		ZoneDefined: true, BallCalibrated: true,
	})
	require.NoError(t, tracker.Arm(ballistics.Environment{}))

	var status track.Status
	rec := doJSON(t, mux, http.MethodPost, "/api/disarm", "", &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, track.StateIdle, status.State)
}

func TestLatestTrajectoryNotFound(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	mux := server.ServeMux()

	rec := doJSON(t, mux, http.MethodGet, "/api/trajectory/latest", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShotsEmptyAndClear(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	mux := server.ServeMux()

	var shots []db.Shot
	rec := doJSON(t, mux, http.MethodGet, "/api/shots", "", &shots)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, shots)

	rec = doJSON(t, mux, http.MethodDelete, "/api/shots", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShotsRejectsBadLimit(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	mux := server.ServeMux()

	rec := doJSON(t, mux, http.MethodGet, "/api/shots?limit=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/shots?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShotsConvertsSpeedUnits(t *testing.T) {
	t.Parallel()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "shots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	tracker := track.New(track.DefaultConfig(), track.NewFrameIngest(16), track.NewReporter(), &stubEstimator{}, nil, nil)
	server := NewServer(tracker, database, units.MPH, "default")

	require.NoError(t, database.RecordShot(db.Shot{Profile: "default", BallSpeedMps: 10}))

	var shots []db.Shot
	rec := doJSON(t, server.ServeMux(), http.MethodGet, "/api/shots", "", &shots)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, shots, 1)
	assert.InDelta(t, 22.37, shots[0].BallSpeedMps, 0.01)
}

func TestConfigEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	mux := server.ServeMux()

	var cfg map[string]string
	rec := doJSON(t, mux, http.MethodGet, "/api/config", "", &cfg)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, units.MPH, cfg["units"])
	assert.Equal(t, "default", cfg["profile"])
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	mux := server.ServeMux()

	cases := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/api/arm"},
		{http.MethodGet, "/api/disarm"},
		{http.MethodGet, "/api/reset"},
		{http.MethodPost, "/api/status"},
		{http.MethodPut, "/api/calibration"},
		{http.MethodPost, "/api/shots"},
		{http.MethodPost, "/api/trajectory/latest"},
		{http.MethodPost, "/api/config"},
	}
	for _, tc := range cases {
		rec := doJSON(t, mux, tc.method, tc.target, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.target)
	}
}

func TestRunRecordsCompletedShots(t *testing.T) {
	t.Parallel()

	server, tracker := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Run(ctx)
	}()

	// Give Run a moment to subscribe before publishing.
	require.Eventually(t, func() bool {
		tracker.Reporter().Publish(track.Event{
			Kind: track.EventTrajectoryReady,
			Trajectory: &ballistics.Trajectory{
				CarryDistanceYards: 175,
				BallSpeedMps:       65,
			},
			Frames:    18,
			Timestamp: time.Now(),
		})
		n, err := server.db.ShotCount("default")
		return err == nil && n >= 1
	}, 2*time.Second, 10*time.Millisecond)

	shots, err := server.db.Shots("default", 1)
	require.NoError(t, err)
	require.NotEmpty(t, shots)
	assert.Equal(t, 175.0, shots[0].CarryYards)
	assert.Equal(t, 18, shots[0].Frames)

	cancel()
	<-done
}

// sseRecorder is a ResponseWriter safe to read while the handler goroutine
// is still writing.
type sseRecorder struct {
	mu     sync.Mutex
	header http.Header
	body   strings.Builder
}

func newSSERecorder() *sseRecorder {
	return &sseRecorder{header: make(http.Header)}
}

func (r *sseRecorder) Header() http.Header { return r.header }

func (r *sseRecorder) WriteHeader(int) {}

func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(p)
}

func (r *sseRecorder) Flush() {}

func (r *sseRecorder) Body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func TestEventStreamDeliversTrackerEvents(t *testing.T) {
	t.Parallel()

	server, tracker := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := newSSERecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		server.ServeMux().ServeHTTP(rec, req)
	}()

	require.Eventually(t, func() bool {
		tracker.Reporter().Publish(track.Event{Kind: track.EventHitDetected, State: track.StateTracking})
		return strings.Contains(rec.Body(), "event: hitDetected")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	body := rec.Body()
	assert.True(t, strings.HasPrefix(body, ": ping\n\n"))
	assert.Contains(t, body, `"kind":"hitDetected"`)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}
