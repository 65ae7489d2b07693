package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	raised  map[alarm.Kind]string
	cleared []alarm.Kind
}

func newSink() *recordingSink {
	return &recordingSink{raised: map[alarm.Kind]string{}}
}

func (s *recordingSink) Raise(kind alarm.Kind, msg string) { s.raised[kind] = msg }
func (s *recordingSink) Clear(kind alarm.Kind)             { s.cleared = append(s.cleared, kind) }

func testLimits() env.LimitsConfig {
	return env.LimitsConfig{
		Temperature: env.Limit{MaxDelta: 10, Low: -60, High: 60},
		Humidity:    env.Limit{MaxDelta: 30, Low: 0, High: 100},
		Pressure:    env.Limit{MaxDelta: 10, Low: 850, High: 1100},
		Gust:        env.Limit{MaxDelta: 70, Low: 0, High: 200},
		Wind:        env.Limit{MaxDelta: 20, Low: 0, High: 150},
		Solar:       env.Limit{MaxDelta: 1500, Low: 0, High: 2000},
		UV:          env.Limit{MaxDelta: 15, Low: 0, High: 20},
	}
}

var ts = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func TestFirstReadingAlwaysPassesDelta(t *testing.T) {
	v := New(testLimits(), 1000, newSink())
	assert.NoError(t, v.Validate(Temperature, 35, env.Uninitialised, ts))
}

func TestDeltaRejection(t *testing.T) {
	sink := newSink()
	v := New(testLimits(), 1000, sink)

	err := v.Validate(Temperature, 31, 20, ts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeltaExceeded))

	msg := sink.raised[alarm.TempSpike]
	assert.Contains(t, msg, "old [20.00]")
	assert.Contains(t, msg, "new [31.00]")
	assert.Contains(t, msg, "max delta [10.00]")

	assert.NoError(t, v.Validate(Temperature, 21, 20, ts))
	assert.Contains(t, sink.cleared, alarm.TempSpike)
}

func TestRangeRejection(t *testing.T) {
	sink := newSink()
	v := New(testLimits(), 1000, sink)

	err := v.Validate(Pressure, 800, env.Uninitialised, ts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	assert.Contains(t, sink.raised[alarm.Limit], "limits [850.00, 1100.00]")

	// another metric passing does not clear the limit alarm
	require.NoError(t, v.Validate(Temperature, 10, env.Uninitialised, ts))
	assert.NotContains(t, sink.cleared, alarm.Limit)

	require.NoError(t, v.Validate(Pressure, 1000, env.Uninitialised, ts))
	assert.Contains(t, sink.cleared, alarm.Limit)
}

func TestWindGustCheckedFirst(t *testing.T) {
	sink := newSink()
	v := New(testLimits(), 1000, sink)

	// both fail, only the gust alarm fires
	err := v.ValidateWind(100, 10, 100, 10, ts)
	require.Error(t, err)
	assert.Contains(t, sink.raised, alarm.GustSpike)
	assert.NotContains(t, sink.raised, alarm.WindSpike)

	// gust within its threshold, speed over its own
	err = v.ValidateWind(40, 10, 40, 10, ts)
	require.Error(t, err)
	assert.Contains(t, sink.raised, alarm.WindSpike)
}

func TestRainRateHasNoDelta(t *testing.T) {
	sink := newSink()
	v := New(testLimits(), 100, sink)
	assert.NoError(t, v.Validate(RainRate, 90, 0, ts))
	assert.True(t, errors.Is(v.Validate(RainRate, 150, 0, ts), ErrOutOfRange))
	assert.Contains(t, sink.raised, alarm.RainRateSpike)
	assert.NotContains(t, sink.raised, alarm.Limit)
}

func TestOnReject(t *testing.T) {
	v := New(testLimits(), 1000, nil)
	var got []Metric
	v.OnReject(func(m Metric, _ error) { got = append(got, m) })
	_ = v.Validate(UV, 25, env.Uninitialised, ts)
	assert.Equal(t, []Metric{UV}, got)
}

func TestUnknownMetric(t *testing.T) {
	v := New(testLimits(), 1000, nil)
	assert.True(t, errors.Is(v.Validate("snow", 1, 0, ts), ErrUnknownMetric))
}
