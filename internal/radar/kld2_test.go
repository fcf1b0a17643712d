package radar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.monitor/internal/timeutil"
)

type fakeMux struct {
	sent   []string
	lines  chan string
	sendFn func(string) error
}

func newFakeMux() *fakeMux {
	return &fakeMux{lines: make(chan string, 16)}
}

func (m *fakeMux) Subscribe() (string, chan string) { return "test", m.lines }
func (m *fakeMux) Unsubscribe(string)               {}
func (m *fakeMux) SendCommand(cmd string) error {
	if m.sendFn != nil {
		return m.sendFn(cmd)
	}
	m.sent = append(m.sent, cmd)
	return nil
}

func TestParseReading(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		line string
		want Reading
		ok   bool
	}{
		{"approaching target", "001;074;0512;", Reading{Bin: 1, SpeedMph: 74, Magnitude: 512}, true},
		{"receding target", "002;-031;0100;", Reading{Bin: 2, SpeedMph: -31, Magnitude: 100}, true},
		{"no motion", "000;000;0000;", Reading{}, true},
		{"trailing whitespace", " 001;050;0200; \r\n", Reading{Bin: 1, SpeedMph: 50, Magnitude: 200}, true},
		{"command echo", "$C00", Reading{}, false},
		{"acknowledgement", "@C00", Reading{}, false},
		{"empty line", "", Reading{}, false},
		{"too few fields", "001;074", Reading{}, false},
		{"non-numeric field", "001;fast;074;", Reading{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, ok := ParseReading(tc.line)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, r)
			}
		})
	}
}

func TestApproaching(t *testing.T) {
	t.Parallel()

	assert.True(t, Reading{SpeedMph: 74}.Approaching())
	assert.False(t, Reading{SpeedMph: -31}.Approaching())
	assert.False(t, Reading{SpeedMph: 0}.Approaching())
}

func TestIsAllowedCommand(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAllowedCommand("$C00"))
	assert.True(t, IsAllowedCommand("$S0405"))
	assert.True(t, IsAllowedCommand("$S015"), "sensitivity takes a suffix")
	assert.True(t, IsAllowedCommand("$S021F"), "threshold takes a suffix")
	assert.True(t, IsAllowedCommand(" $C00 "), "surrounding whitespace is trimmed")

	assert.False(t, IsAllowedCommand("$S01"), "parameterized command needs its value")
	assert.False(t, IsAllowedCommand("$X99"))
	assert.False(t, IsAllowedCommand("C00"))
	assert.False(t, IsAllowedCommand(""))
}

func TestSendCommandRefusesUnlistedCommands(t *testing.T) {
	t.Parallel()

	mux := newFakeMux()
	k := NewKLD2(mux, nil)

	require.NoError(t, k.SendCommand("$C00"))
	assert.Equal(t, []string{"$C00"}, mux.sent)

	err := k.SendCommand("$X99")
	assert.Error(t, err)
	assert.Len(t, mux.sent, 1, "refused command must not reach the wire")
}

func TestInitializeSetsSamplingRate(t *testing.T) {
	t.Parallel()

	mux := newFakeMux()
	k := NewKLD2(mux, nil)

	require.NoError(t, k.Initialize())
	assert.Equal(t, []string{"$S0405"}, mux.sent)
}

func TestSpeedTracksApproachingReadingsOnly(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	k := NewKLD2(newFakeMux(), clock)

	k.handleLine("001;074;0512;")
	assert.True(t, k.Connected())
	assert.Equal(t, 74.0, k.SpeedMph())

	// Receding and zero readings keep the link alive but do not replace the
	// last ball speed.
	k.handleLine("001;-031;0100;")
	k.handleLine("000;000;0000;")
	assert.True(t, k.Connected())
	assert.Equal(t, 74.0, k.SpeedMph())
}

func TestSpeedGoesStale(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	k := NewKLD2(newFakeMux(), clock)

	k.handleLine("001;090;0512;")
	assert.Equal(t, 90.0, k.SpeedMph())

	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, 0.0, k.SpeedMph(), "reading older than the freshness window is not a speed")
	assert.True(t, k.Connected(), "a stale speed does not mean a dead link")
}

func TestConnectedExpires(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	k := NewKLD2(newFakeMux(), clock)

	assert.False(t, k.Connected(), "no lines yet")

	k.handleLine("000;000;0000;")
	assert.True(t, k.Connected())

	clock.Advance(3 * time.Second)
	assert.False(t, k.Connected())
}

func TestGarbageLinesDoNotCountAsLink(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	k := NewKLD2(newFakeMux(), clock)

	k.handleLine("@C00")
	k.handleLine("garbage")
	assert.False(t, k.Connected())
	assert.Equal(t, 0.0, k.SpeedMph())
}
