package vision

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.monitor/internal/timeutil"
	"github.com/fairway-data/launch.monitor/internal/track"
)

func writeCapture(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestReplayPushesDetections(t *testing.T) {
	t.Parallel()

	path := writeCapture(t, `{"ts": 1000, "x": 0.50, "y": 0.50, "confidence": 0.9, "present": true}
{"ts": 9333333, "x": 0.52, "y": 0.50, "confidence": 0.9, "present": true}
{"ts": 17666666, "x": 0.58, "y": 0.49, "confidence": 0.8, "present": true}
`)

	ingest := track.NewFrameIngest(8)
	require.NoError(t, Replay(context.Background(), path, ingest, nil, 0))

	assert.Equal(t, 3, ingest.Occupancy())
	d, ok := ingest.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(1000), d.Timestamp)
	assert.Equal(t, 0.50, d.X)
	assert.True(t, d.Present)
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	t.Parallel()

	path := writeCapture(t, `{"ts": 1000, "x": 0.5, "y": 0.5, "confidence": 0.9, "present": true}
this is not json
{"ts": 2000, "x": 0.5, "y": 0.5, "confidence": 0.9, "present": true}

`)

	ingest := track.NewFrameIngest(8)
	require.NoError(t, Replay(context.Background(), path, ingest, nil, 0))
	assert.Equal(t, 2, ingest.Occupancy())
}

func TestReplayPacesByTimestampDeltas(t *testing.T) {
	t.Parallel()

	path := writeCapture(t, `{"ts": 1000000, "present": true}
{"ts": 11000000, "present": true}
{"ts": 31000000, "present": true}
`)

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	ingest := track.NewFrameIngest(8)
	require.NoError(t, Replay(context.Background(), path, ingest, clock, 2.0))

	// First frame has no predecessor. The remaining deltas (10ms, 20ms) are
	// halved by the 2x speed factor.
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}, clock.Sleeps())
}

func TestReplayWithoutPacingNeverSleeps(t *testing.T) {
	t.Parallel()

	path := writeCapture(t, `{"ts": 0, "present": true}
{"ts": 500000000, "present": true}
`)

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	ingest := track.NewFrameIngest(8)
	require.NoError(t, Replay(context.Background(), path, ingest, clock, 0))
	assert.Empty(t, clock.Sleeps())
}

func TestReplayMissingFile(t *testing.T) {
	t.Parallel()

	ingest := track.NewFrameIngest(8)
	err := Replay(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"), ingest, nil, 0)
	assert.Error(t, err)
}

func TestReplayStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	path := writeCapture(t, `{"ts": 1000, "present": true}
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ingest := track.NewFrameIngest(8)
	err := Replay(ctx, path, ingest, nil, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ingest.Occupancy())
}
