// Package vision feeds ball detections into the tracker's ingest ring, from
// either the detection daemon's UDP stream or a recorded capture file.
package vision

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	"github.com/fairway-data/launch.monitor/internal/monitoring"
	"github.com/fairway-data/launch.monitor/internal/timeutil"
	"github.com/fairway-data/launch.monitor/internal/track"
)

// readErrorBackoff paces retries after a non-cancellation socket error so a
// persistently failing socket does not spin the read loop.
const readErrorBackoff = 100 * time.Millisecond

// detectionConn is the slice of *net.UDPConn the read loop needs.
type detectionConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

// Listener receives one JSON detection per UDP datagram from the camera
// pipeline and pushes it into the ingest ring.
type Listener struct {
	addr   string
	ingest *track.FrameIngest
	clock  timeutil.Clock

	packets   atomic.Int64
	bytes     atomic.Int64
	malformed atomic.Int64
}

// ListenerStats is a snapshot of the listener's counters.
type ListenerStats struct {
	Packets   int64 `json:"packets"`
	Bytes     int64 `json:"bytes"`
	Malformed int64 `json:"malformed"`
}

// NewListener creates a Listener bound to addr (e.g. ":5800").
func NewListener(addr string, ingest *track.FrameIngest) *Listener {
	return &Listener{addr: addr, ingest: ingest, clock: timeutil.RealClock{}}
}

// Run listens for detection datagrams until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	monitoring.Logf("vision: listening for detections on %s", conn.LocalAddr())

	// Closing the socket unblocks the read loop on cancellation.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return l.readLoop(ctx, conn)
}

func (l *Listener) readLoop(ctx context.Context, conn detectionConn) error {
	buffer := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("vision: read error: %v", err)
			l.clock.Sleep(readErrorBackoff)
			continue
		}

		l.packets.Add(1)
		l.bytes.Add(int64(n))

		var d track.Detection
		if err := json.Unmarshal(buffer[:n], &d); err != nil {
			l.malformed.Add(1)
			continue
		}
		l.ingest.Push(d)
	}
}

// Stats returns the listener's counters.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Packets:   l.packets.Load(),
		Bytes:     l.bytes.Load(),
		Malformed: l.malformed.Load(),
	}
}
