package vision

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fairway-data/launch.monitor/internal/monitoring"
	"github.com/fairway-data/launch.monitor/internal/timeutil"
	"github.com/fairway-data/launch.monitor/internal/track"
)

// Replay pushes detections from a JSON-lines capture file into the ingest
// ring, paced by the recorded timestamp deltas. speed scales the pacing
// (2.0 = twice as fast); speed <= 0 replays without pacing.
func Replay(ctx context.Context, path string, ingest *track.FrameIngest, clock timeutil.Clock, speed float64) error {
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()

	var (
		count  int
		lastTS int64
	)
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}

		var d track.Detection
		if err := json.Unmarshal(line, &d); err != nil {
			monitoring.Logf("vision: skipping malformed capture line: %v", err)
			continue
		}

		if speed > 0 && lastTS != 0 && d.Timestamp > lastTS {
			clock.Sleep(time.Duration(float64(d.Timestamp-lastTS) / speed))
		}
		lastTS = d.Timestamp

		ingest.Push(d)
		count++
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("failed to read capture file: %w", err)
	}

	monitoring.Logf("vision: replayed %d detections from %s", count, path)
	return nil
}
