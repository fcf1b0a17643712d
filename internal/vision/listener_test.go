package vision

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.monitor/internal/timeutil"
	"github.com/fairway-data/launch.monitor/internal/track"
)

// freeUDPAddr grabs an ephemeral port and releases it for the listener.
func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}

func TestListenerIngestsDatagrams(t *testing.T) {
	t.Parallel()

	addr := freeUDPAddr(t)
	ingest := track.NewFrameIngest(16)
	listener := NewListener(addr, ingest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.Run(ctx)
	}()

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// Retry until the listener is bound and has consumed a packet.
	require.Eventually(t, func() bool {
		conn.Write([]byte(`{"ts": 1000, "x": 0.5, "y": 0.4, "confidence": 0.9, "present": true}`))
		return ingest.Occupancy() > 0
	}, 2*time.Second, 10*time.Millisecond)

	d, ok := ingest.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(1000), d.Timestamp)
	assert.Equal(t, 0.5, d.X)
	assert.Equal(t, 0.4, d.Y)
	assert.True(t, d.Present)

	stats := listener.Stats()
	assert.Greater(t, stats.Packets, int64(0))
	assert.Greater(t, stats.Bytes, int64(0))

	cancel()
	<-done
}

func TestListenerCountsMalformedPayloads(t *testing.T) {
	t.Parallel()

	addr := freeUDPAddr(t)
	ingest := track.NewFrameIngest(16)
	listener := NewListener(addr, ingest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		conn.Write([]byte("not json"))
		return listener.Stats().Malformed > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, ingest.Occupancy())
}

// faultyConn fails every read, standing in for a socket stuck in an error
// state that is not a cancellation.
type faultyConn struct{}

func (faultyConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	return 0, nil, errors.New("recvfrom: no buffer space available")
}

func TestListenerBacksOffOnReadErrors(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	listener := NewListener(":0", track.NewFrameIngest(4))
	listener.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- listener.readLoop(ctx, faultyConn{})
	}()

	// Every failed read must be paced by the backoff, not retried hot.
	require.Eventually(t, func() bool {
		return len(clock.Sleeps()) > 2
	}, 2*time.Second, 5*time.Millisecond)
	for _, d := range clock.Sleeps()[:3] {
		assert.Equal(t, readErrorBackoff, d)
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop on cancellation")
	}
}

func TestListenerBadAddress(t *testing.T) {
	t.Parallel()

	listener := NewListener("not-an-address", track.NewFrameIngest(4))
	err := listener.Run(context.Background())
	assert.Error(t, err)
}
