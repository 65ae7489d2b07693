package data

import (
	"testing"
	"time"

	"github.com/gr-butler/wxcore/env"
	"github.com/stretchr/testify/assert"
)

func TestPreviousStartsUninitialised(t *testing.T) {
	wd := CreateWeatherData("temperature")
	assert.Equal(t, env.Uninitialised, wd.Previous("temperature"))
	assert.Equal(t, env.Uninitialised, wd.Previous("missing"))

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	wd.Add("temperature", 12.5, ts)
	assert.Equal(t, 12.5, wd.Previous("temperature"))
}

func TestMinuteAverage(t *testing.T) {
	wd := CreateWeatherData("temperature")
	now := time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC)
	wd.Add("temperature", 5, now.Add(-90*time.Second))
	wd.Add("temperature", 10, now.Add(-40*time.Second))
	wd.Add("temperature", 12, now)

	avg, ok := wd.MinuteAverage("temperature", now)
	assert.True(t, ok)
	assert.Equal(t, 11.0, avg)

	_, ok = wd.MinuteAverage("temperature", now.Add(time.Hour))
	assert.False(t, ok)
}
