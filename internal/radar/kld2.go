// Package radar drives the K-LD2 doppler module (RFBEAM K-LD2-RFB-00H-02)
// over its ASCII serial protocol and exposes the latest approaching-target
// speed as a confirmation source for impact detection.
package radar

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fairway-data/launch.monitor/internal/monitoring"
	"github.com/fairway-data/launch.monitor/internal/timeutil"
)

const (
	// pollInterval is the $C00 polling cadence (20 Hz).
	pollInterval = 50 * time.Millisecond

	// cmdSamplingRate20480 sets the sampling rate needed to resolve golf
	// swing speeds (max ~144 mph).
	cmdSamplingRate20480 = "$S0405"

	// cmdReadSpeed polls the current speed report.
	cmdReadSpeed = "$C00"

	// speedFreshness bounds how long a reading counts as current.
	speedFreshness = 250 * time.Millisecond

	// linkFreshness bounds how long since the last parseable line the
	// module still counts as connected.
	linkFreshness = 2 * time.Second
)

// LineMux is the subset of the serial mux the radar needs.
type LineMux interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
}

// Reading is one parsed K-LD2 speed report.
type Reading struct {
	Bin       int
	SpeedMph  int // negative = receding target
	Magnitude int
}

// Approaching reports whether the target is moving toward the sensor. The
// sensor faces the hitting zone, so only approaching targets are struck
// balls; receding readings are follow-through.
func (r Reading) Approaching() bool {
	return r.SpeedMph > 0
}

// ParseReading parses a K-LD2 report line of the form "bin;mph;magnitude;".
// Command echoes ($...) and acknowledgements (@...) are not reports.
func ParseReading(line string) (Reading, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "$") || strings.HasPrefix(line, "@") {
		return Reading{}, false
	}
	parts := strings.Split(line, ";")
	if len(parts) < 3 {
		return Reading{}, false
	}
	bin, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Reading{}, false
	}
	mph, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Reading{}, false
	}
	mag, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Reading{}, false
	}
	return Reading{Bin: bin, SpeedMph: mph, Magnitude: mag}, true
}

// KLD2 polls the module and tracks the most recent approaching speed.
// It implements the tracker's SpeedSource.
type KLD2 struct {
	mux   LineMux
	clock timeutil.Clock

	mu        sync.Mutex
	lastLine  time.Time
	lastSpeed time.Time
	speedMph  float64
}

// NewKLD2 creates a KLD2 on the given serial mux.
func NewKLD2(mux LineMux, clock timeutil.Clock) *KLD2 {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &KLD2{mux: mux, clock: clock}
}

// SendCommand validates a command against the allow list and sends it.
func (k *KLD2) SendCommand(command string) error {
	if !IsAllowedCommand(command) {
		return fmt.Errorf("command %q not allowed for K-LD2", command)
	}
	return k.mux.SendCommand(command)
}

// Initialize configures the module for golf swing speeds.
func (k *KLD2) Initialize() error {
	if err := k.SendCommand(cmdSamplingRate20480); err != nil {
		return fmt.Errorf("failed to set sampling rate: %w", err)
	}
	return nil
}

// Run polls the module at 20 Hz and consumes report lines until the context
// is cancelled.
func (k *KLD2) Run(ctx context.Context) error {
	id, lines := k.mux.Subscribe()
	defer k.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			k.handleLine(line)

		case <-k.clock.After(pollInterval):
			if err := k.SendCommand(cmdReadSpeed); err != nil {
				monitoring.Logf("radar: poll failed: %v", err)
			}
		}
	}
}

func (k *KLD2) handleLine(line string) {
	r, ok := ParseReading(line)
	if !ok {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastLine = k.clock.Now()

	// Zero means no motion; receding means follow-through. Neither is a
	// ball speed.
	if r.SpeedMph == 0 || !r.Approaching() {
		return
	}
	k.speedMph = float64(r.SpeedMph)
	k.lastSpeed = k.clock.Now()
}

// Connected reports whether the module produced a parseable line recently.
func (k *KLD2) Connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return !k.lastLine.IsZero() && k.clock.Since(k.lastLine) < linkFreshness
}

// SpeedMph returns the most recent approaching speed, or 0 when the last
// reading is stale.
func (k *KLD2) SpeedMph() float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.lastSpeed.IsZero() || k.clock.Since(k.lastSpeed) >= speedFreshness {
		return 0
	}
	return k.speedMph
}
