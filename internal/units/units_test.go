package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidSpeedUnit(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidSpeedUnit(MPS))
	assert.True(t, IsValidSpeedUnit(MPH))
	assert.True(t, IsValidSpeedUnit(KPH))
	assert.False(t, IsValidSpeedUnit("knots"))
	assert.False(t, IsValidSpeedUnit(""))
}

func TestConvertSpeed(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 22.369, ConvertSpeed(10, MPH), 0.001)
	assert.InDelta(t, 36.0, ConvertSpeed(10, KPH), 1e-9)
	assert.Equal(t, 10.0, ConvertSpeed(10, MPS))
	assert.Equal(t, 10.0, ConvertSpeed(10, "unknown"), "unknown units pass through as m/s")
}

func TestDistanceConversionsRoundTrip(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 109.361, MetersToYards(100), 0.001)
	assert.InDelta(t, 100.0, YardsToMeters(MetersToYards(100)), 1e-9)
	assert.InDelta(t, 26.82, MphToMps(60), 0.01)
}
