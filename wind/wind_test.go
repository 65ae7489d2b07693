package wind

import (
	"testing"
	"time"

	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)

func sec(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Second)
}

func unity() Config {
	return Config{SpeedMultiplier: 1, GustMultiplier: 1}
}

func TestPeakGust(t *testing.T) {
	e := NewEngine(unity())
	e.RecordSample(20, 10, 180, sec(0))
	e.RecordSample(30, 12, 180, sec(60))
	e.RecordSample(25, 11, 180, sec(120))

	assert.Equal(t, 30.0, e.PeakGust(sec(120), 180*time.Second))
	assert.Equal(t, 25.0, e.PeakGust(sec(120), 30*time.Second))
	assert.Equal(t, 0.0, e.PeakGust(sec(1000), 60*time.Second))
}

func TestAverageSpeedWindowCorrectness(t *testing.T) {
	e := NewEngine(Config{SpeedMultiplier: 1, GustMultiplier: 1, UseSpeedForAverage: true})
	// outside the window, far too strong to go unnoticed
	e.RecordSample(90, 80, 0, sec(-700))
	e.RecordSample(90, 80, 0, sec(-601))
	for i := 0; i < 10; i++ {
		e.RecordSample(20, float64(i+1), 0, sec(-600+i*60))
	}
	// in the future relative to now
	e.RecordSample(90, 80, 0, sec(1))

	// 1..10 mean
	assert.InDelta(t, 5.5, e.AverageSpeed(sec(0), 10*time.Minute), 1e-9)
}

func TestAverageSpeedColdStart(t *testing.T) {
	e := NewEngine(unity())
	e.RecordSample(15, 0, 0, sec(0))
	e.RecordSample(15, 0, 0, sec(1))
	e.RecordSample(15, 0, 0, sec(2))

	// three samples is below the minimum, divide by the fallback
	assert.InDelta(t, 45.0/env.ColdStartDivisor, e.AverageSpeed(sec(2), time.Minute), 1e-9)
	assert.Equal(t, 0.0, e.AverageSpeed(sec(2000), time.Minute))
}

func TestCalibrationAppliedOnRead(t *testing.T) {
	e := NewEngine(Config{SpeedMultiplier: 2, GustMultiplier: 1.5})
	for i := 0; i < 6; i++ {
		e.RecordSample(10, 5, 90, sec(i))
	}
	assert.InDelta(t, 15.0, e.AverageSpeed(sec(5), time.Minute), 1e-9)
	assert.InDelta(t, 15.0, e.PeakGust(sec(5), time.Minute), 1e-9)

	gust, speed, ok := e.Latest()
	require.True(t, ok)
	assert.InDelta(t, 15.0, gust, 1e-9)
	assert.InDelta(t, 10.0, speed, 1e-9)
}

func TestVectorAverageBearingAcrossNorth(t *testing.T) {
	e := NewEngine(unity())
	e.RecordSample(10, 10, 350, sec(0))
	e.RecordSample(10, 10, 10, sec(1))
	e.RecordSample(10, 10, 5, sec(2))
	e.RecordSample(10, 10, 355, sec(3))

	avg, from, to := e.VectorAverageBearing(sec(3), time.Minute)
	assert.Equal(t, 360, avg)
	assert.Equal(t, 350, from)
	assert.Equal(t, 10, to)
}

func TestVectorAverageBearingSpreadRoundsOutward(t *testing.T) {
	e := NewEngine(unity())
	e.RecordSample(10, 10, 263, sec(0))
	e.RecordSample(10, 10, 270, sec(1))
	e.RecordSample(10, 10, 277, sec(2))

	avg, from, to := e.VectorAverageBearing(sec(2), time.Minute)
	assert.Equal(t, 270, avg)
	assert.Equal(t, 260, from)
	assert.Equal(t, 280, to)
}

func TestVectorAverageBearingCalm(t *testing.T) {
	e := NewEngine(unity())
	e.RecordSample(0, 0, 200, sec(0))
	avg, from, to := e.VectorAverageBearing(sec(0), time.Minute)
	assert.Equal(t, 0, avg)
	assert.Equal(t, 0, from)
	assert.Equal(t, 0, to)
}

func TestAngleDiff(t *testing.T) {
	assert.Equal(t, 20.0, AngleDiff(350, 10))
	assert.Equal(t, -20.0, AngleDiff(10, 350))
	assert.Equal(t, -180.0, AngleDiff(0, 180))
}

func TestRingOverwritesOldest(t *testing.T) {
	e := NewEngine(unity())
	for i := 0; i < env.WindRingSize+10; i++ {
		e.RecordSample(float64(i), 0, 0, sec(i))
	}
	assert.Equal(t, env.WindRingSize, e.Len())
	// samples 0..9 were overwritten
	assert.Equal(t, float64(env.WindRingSize+9), e.PeakGust(sec(env.WindRingSize+9), time.Hour))
}

func TestRebuild(t *testing.T) {
	e := NewEngine(Config{SpeedMultiplier: 1, GustMultiplier: 2})
	var rows []store.Row
	for i := 0; i < 10; i++ {
		rows = append(rows, store.Row{Timestamp: sec(i * 60), WindGust: 20, WindSpeed: 8, Bearing: 90})
	}
	e.Rebuild(rows)

	assert.Equal(t, 10, e.Len())
	assert.InDelta(t, 20.0, e.PeakGust(sec(540), 10*time.Minute), 1e-9)
	avg, _, _ := e.VectorAverageBearing(sec(540), 10*time.Minute)
	assert.Equal(t, 90, avg)
}

func TestDominant(t *testing.T) {
	var d Dominant
	assert.Equal(t, 0, d.Bearing())
	d.AddMinute(90, 10)
	d.AddMinute(90, 10)
	d.AddMinute(180, 5)
	assert.Equal(t, 3, d.Minutes())
	// 20 east, 5 south
	assert.Equal(t, 104, d.Bearing())

	x, y, m := d.State()
	var restored Dominant
	restored.Restore(x, y, m)
	assert.Equal(t, 104, restored.Bearing())

	d.Reset()
	assert.Equal(t, 0, d.Minutes())
}
