package wind

/*
Wind statistics.

Every reading is kept in two rings of WindRingSize entries. The first holds the raw gust and
speed, the second the gust as a vector so the bearing can be averaged without the 359/1 wrap
problem. Nothing is ever removed from a ring; the aggregates filter on timestamp so anything
older than the window is simply ignored.

Calibration multipliers are applied when reading an aggregate, the rings hold what the station sent.
*/

import (
	"math"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/buffer"
	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/store"
)

type Sample struct {
	Gust      float64
	Speed     float64
	Timestamp time.Time
}

type vector struct {
	X         float64
	Y         float64
	Bearing   float64
	Timestamp time.Time
}

type Config struct {
	SpeedMultiplier    float64
	GustMultiplier     float64
	UseSpeedForAverage bool
}

func ConfigFrom(s env.StationConfig) Config {
	return Config{
		SpeedMultiplier:    s.WindSpeedMultiplier,
		GustMultiplier:     s.WindGustMultiplier,
		UseSpeedForAverage: s.UseSpeedForAverage,
	}
}

type Engine struct {
	mu      sync.Mutex
	cfg     Config
	recent  *buffer.Ring[Sample]
	vectors *buffer.Ring[vector]
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		recent:  buffer.NewRing[Sample](env.WindRingSize),
		vectors: buffer.NewRing[vector](env.WindRingSize),
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// RecordSample stores one uncalibrated reading. Bearing is in degrees.
func (e *Engine) RecordSample(gust, speed, bearing float64, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent.AddItem(Sample{Gust: gust, Speed: speed, Timestamp: ts})
	rad := toRadians(bearing)
	e.vectors.AddItem(vector{X: gust * math.Sin(rad), Y: gust * math.Cos(rad), Bearing: bearing, Timestamp: ts})
}

func inWindow(ts, now time.Time, window time.Duration) bool {
	return !ts.Before(now.Add(-window)) && !ts.After(now)
}

// AverageSpeed is the mean over [now-window, now]. During cold start, with fewer than
// MinWindSamples samples, the sum is divided by ColdStartDivisor instead so the average reads low.
func (e *Engine) AverageSpeed(now time.Time, window time.Duration) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	sum := 0.0
	n := 0
	e.recent.Each(func(s Sample) {
		if !inWindow(s.Timestamp, now, window) {
			return
		}
		if e.cfg.UseSpeedForAverage {
			sum += s.Speed
		} else {
			sum += s.Gust
		}
		n++
	})

	mult := e.cfg.GustMultiplier
	if e.cfg.UseSpeedForAverage {
		mult = e.cfg.SpeedMultiplier
	}
	if n < env.MinWindSamples {
		return sum / env.ColdStartDivisor * mult
	}
	return sum / float64(n) * mult
}

// PeakGust is the highest gust in [now-window, now], 0 if there is none.
func (e *Engine) PeakGust(now time.Time, window time.Duration) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	peak := 0.0
	e.recent.Each(func(s Sample) {
		if inWindow(s.Timestamp, now, window) && s.Gust > peak {
			peak = s.Gust
		}
	})
	return peak * e.cfg.GustMultiplier
}

// Latest returns the last calibrated gust and speed recorded.
func (e *Engine) Latest() (gust, speed float64, ok bool) {
	s, ok := e.recent.GetLast()
	if !ok {
		return 0, 0, false
	}
	return s.Gust * e.cfg.GustMultiplier, s.Speed * e.cfg.SpeedMultiplier, true
}

// Bearing resolves a summed vector to whole degrees 1-360, 0 means calm.
func Bearing(sumX, sumY float64) int {
	if sumX == 0 && sumY == 0 {
		return 0
	}
	deg := int(math.Round(math.Atan2(sumX, sumY) * 180 / math.Pi))
	if deg <= 0 {
		deg += 360
	}
	return deg
}

// AngleDiff is the signed shortest difference b-a in the range -180..180.
func AngleDiff(a, b float64) float64 {
	return math.Mod(b-a+540, 360) - 180
}

func normalise(deg int) int {
	deg %= 360
	if deg <= 0 {
		deg += 360
	}
	return deg
}

// VectorAverageBearing returns the gust weighted mean bearing over the window and the
// bearings bounding the spread of samples around it, rounded outward to 10 degrees.
// All three are 0 when the wind is calm.
func (e *Engine) VectorAverageBearing(now time.Time, window time.Duration) (avg, from, to int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sumX, sumY := 0.0, 0.0
	e.vectors.Each(func(v vector) {
		if inWindow(v.Timestamp, now, window) {
			sumX += v.X
			sumY += v.Y
		}
	})
	avg = Bearing(sumX, sumY)
	if avg == 0 {
		return 0, 0, 0
	}

	minDiff, maxDiff := 0.0, 0.0
	e.vectors.Each(func(v vector) {
		if !inWindow(v.Timestamp, now, window) {
			return
		}
		d := AngleDiff(float64(avg), v.Bearing)
		if d < minDiff {
			minDiff = d
		}
		if d > maxDiff {
			maxDiff = d
		}
	})
	from = normalise(avg + int(math.Floor(minDiff/10)*10))
	to = normalise(avg + int(math.Ceil(maxDiff/10)*10))
	return avg, from, to
}

// Rebuild refills both rings from stored rows, used at start up so the windows are full immediately.
// Rows hold calibrated values so the multipliers are removed again.
func (e *Engine) Rebuild(rows []store.Row) {
	e.mu.Lock()
	e.recent.Reset()
	e.vectors.Reset()
	e.mu.Unlock()

	for _, r := range rows {
		e.RecordSample(r.WindGust/e.cfg.GustMultiplier, r.WindSpeed/e.cfg.SpeedMultiplier, r.Bearing, r.Timestamp)
	}
}

func (e *Engine) Len() int {
	return e.recent.Len()
}

// Dominant is the whole day prevailing wind, a vector sum of one minute average per processing minute.
type Dominant struct {
	mu      sync.Mutex
	sumX    float64
	sumY    float64
	minutes int
}

func (d *Dominant) AddMinute(bearing, speed float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rad := toRadians(bearing)
	d.sumX += speed * math.Sin(rad)
	d.sumY += speed * math.Cos(rad)
	d.minutes++
}

func (d *Dominant) Bearing() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Bearing(d.sumX, d.sumY)
}

func (d *Dominant) Minutes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minutes
}

func (d *Dominant) State() (sumX, sumY float64, minutes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sumX, d.sumY, d.minutes
}

func (d *Dominant) Restore(sumX, sumY float64, minutes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sumX, d.sumY, d.minutes = sumX, sumY, minutes
}

func (d *Dominant) Reset() {
	d.Restore(0, 0, 0)
}
