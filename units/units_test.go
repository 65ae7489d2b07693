package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	assert.Equal(t, 212.0, CToF(100))
	assert.InDelta(t, 100.0, FToC(212), 1e-9)
	assert.InDelta(t, 273.15, CToK(0), 1e-6)
	assert.InDelta(t, 4.4704, MphToMs(10), 1e-9)
	assert.InDelta(t, 10.0, MsToMph(4.4704), 1e-9)
	assert.InDelta(t, 16.09344, MphToKmh(10), 1e-6)
	assert.InDelta(t, 1.0, MmToIn(25.4), 1e-9)
	assert.InDelta(t, 29.92, HPaToIn(1013.2), 0.01)
	assert.Equal(t, 25.35, Round(25.3456, 2))
}

func TestDewPoint(t *testing.T) {
	assert.InDelta(t, 9.26, DewPoint(20, 50), 0.05)
	// saturated air
	assert.InDelta(t, 15.0, DewPoint(15, 100), 1e-9)
	// zero humidity must not blow up
	assert.False(t, DewPoint(10, 0) > 10)
}

func TestWindChill(t *testing.T) {
	assert.InDelta(t, -19.5, WindChill(-10, 30), 0.1)
	assert.Equal(t, 15.0, WindChill(15, 30))
	assert.Equal(t, 5.0, WindChill(5, 3))
}

func TestHeatIndex(t *testing.T) {
	assert.InDelta(t, 19.36, HeatIndex(20, 50), 0.05)
	// NWS table: 90°F at 70% is 106°F
	assert.InDelta(t, 41.1, HeatIndex(32.2, 70), 0.5)
}

func TestApparentAndHumidex(t *testing.T) {
	assert.InDelta(t, 24.81, ApparentTemperature(25, 50, 2), 0.05)
	assert.InDelta(t, 36.3, Humidex(30, 50), 0.2)
}

func TestFeelsLike(t *testing.T) {
	assert.Equal(t, WindChill(-10, 30), FeelsLike(-10, 50, 30))
	assert.Equal(t, HeatIndex(32.2, 70), FeelsLike(32.2, 70, 0))
	assert.Equal(t, 20.0, FeelsLike(20, 50, 10))
}
