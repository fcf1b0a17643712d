package track

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairway-data/launch.monitor/internal/ballistics"
)

// EventKind identifies a tracker notification.
type EventKind string

const (
	EventStateChanged     EventKind = "stateChanged"
	EventHitDetected      EventKind = "hitDetected"
	EventTrackingComplete EventKind = "trackingComplete"
	EventTrajectoryReady  EventKind = "trajectoryReady"
	EventTrackingFailed   EventKind = "trackingFailed"
)

// Event is a tracker notification delivered to subscribers. X and Y carry
// the contact position on hitDetected; the UI anchors its impact marker
// there, separately from the final trajectory.
type Event struct {
	Kind       EventKind              `json:"kind"`
	State      State                  `json:"state"`
	Failure    FailureReason          `json:"failure,omitempty"`
	Frames     int                    `json:"frames,omitempty"`
	X          float64                `json:"x,omitempty"`
	Y          float64                `json:"y,omitempty"`
	Trajectory *ballistics.Trajectory `json:"trajectory,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Reporter fans tracker events out to subscribers. Sends never block: a
// subscriber whose channel is full misses the event rather than stalling the
// tracker loop.
type Reporter struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
}

// NewReporter creates an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{subscribers: make(map[string]chan Event)}
}

// Subscribe creates a buffered event channel. The returned ID identifies the
// channel for Unsubscribe.
func (r *Reporter) Subscribe() (string, chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 16)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (r *Reporter) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subscribers[id]; ok {
		close(ch)
		delete(r.subscribers, id)
	}
}

// Publish delivers an event to every subscriber that has room for it.
func (r *Reporter) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, id)
	}
}
