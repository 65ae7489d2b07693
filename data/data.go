package data

import (
	"sync"
	"time"

	"github.com/gr-butler/wxcore/buffer"
	"github.com/gr-butler/wxcore/env"
)

// holder for the recent accepted readings of each scalar sensor

type WeatherData struct {
	lock    sync.RWMutex
	buffers map[string]*buffer.SampleBuffer
}

func CreateWeatherData(names ...string) *WeatherData {
	wd := WeatherData{}

	wd.buffers = make(map[string]*buffer.SampleBuffer)
	for _, n := range names {
		wd.buffers[n] = buffer.NewBuffer(env.WindRingSize)
	}

	return &wd
}

func (wd *WeatherData) GetBuffer(name string) *buffer.SampleBuffer {
	wd.lock.RLock()
	defer wd.lock.RUnlock()
	return wd.buffers[name]
}

// Add records an accepted reading, unknown names are ignored.
func (wd *WeatherData) Add(name string, val float64, ts time.Time) {
	if b := wd.GetBuffer(name); b != nil {
		b.AddItem(val, ts)
	}
}

// Previous is the last accepted value, the spike filter's "uninitialised" marker when there is none.
func (wd *WeatherData) Previous(name string) float64 {
	s, ok := wd.Latest(name)
	if !ok {
		return env.Uninitialised
	}
	return s.Value
}

func (wd *WeatherData) Latest(name string) (buffer.Sample, bool) {
	b := wd.GetBuffer(name)
	if b == nil {
		return buffer.Sample{}, false
	}
	return b.GetLast()
}

// MinuteAverage is the mean of the readings in the minute ending at now.
func (wd *WeatherData) MinuteAverage(name string, now time.Time) (float64, bool) {
	b := wd.GetBuffer(name)
	if b == nil {
		return 0, false
	}
	avg, ok := b.AverageSince(now.Add(-time.Minute), now)
	return float64(avg), ok
}
