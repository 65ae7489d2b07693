package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

type reading struct {
	name  string
	value float64
}

type recorder struct {
	mu       sync.Mutex
	readings []reading
}

func (r *recorder) add(name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, reading{name, v})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readings)
}

func (r *recorder) IngestTemperature(v float64, _ time.Time) { r.add("temperature", v) }
func (r *recorder) IngestHumidity(v float64, _ time.Time)    { r.add("humidity", v) }
func (r *recorder) IngestPressure(v float64, _ time.Time)    { r.add("pressure", v) }
func (r *recorder) IngestWind(gust, bearing, speed float64, _ time.Time) {
	r.add("gust", gust)
	r.add("bearing", bearing)
	r.add("speed", speed)
}
func (r *recorder) IngestRain(counter, _ float64, _ bool, _ time.Time) { r.add("rain", counter) }
func (r *recorder) IngestSolar(v float64, _ time.Time)                { r.add("solar", v) }
func (r *recorder) IngestUV(v float64, _ time.Time)                   { r.add("uv", v) }
func (r *recorder) IngestET(v float64, _ time.Time)                   { r.add("et", v) }

func TestStepStaysInRange(t *testing.T) {
	start := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	s := New(clockwork.NewFakeClockAt(start), 1)
	r := &recorder{}

	lastRain := 0.0
	for i := 0; i < 24*60; i++ {
		s.Step(r, start.Add(time.Duration(i)*time.Minute))
	}
	for _, rd := range r.readings {
		switch rd.name {
		case "temperature":
			assert.InDelta(t, 12, rd.value, 7)
		case "humidity":
			assert.True(t, rd.value >= 20 && rd.value <= 100, "humidity %v", rd.value)
		case "pressure":
			assert.InDelta(t, 1013.25, rd.value, 20)
		case "bearing":
			assert.True(t, rd.value >= 0 && rd.value <= 360, "bearing %v", rd.value)
		case "gust", "speed", "solar", "uv", "et":
			assert.GreaterOrEqual(t, rd.value, 0.0)
		case "rain":
			assert.GreaterOrEqual(t, rd.value, lastRain)
			lastRain = rd.value
		}
	}
}

func TestNoSunAtNight(t *testing.T) {
	s := New(clockwork.NewFakeClock(), 1)
	assert.Equal(t, 0.0, s.solar(time.Date(2024, 6, 12, 2, 0, 0, 0, time.UTC)))
	assert.Greater(t, s.solar(time.Date(2024, 6, 12, 13, 0, 0, 0, time.UTC)), 800.0)
}

func TestRunFeedsOnEachTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, 1)
	r := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, r)
		close(done)
	}()

	clock.BlockUntil(1)
	clock.Advance(Interval)
	assert.Eventually(t, func() bool { return r.count() == 10 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
