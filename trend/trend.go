package trend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/store"
	logger "github.com/sirupsen/logrus"
)

type Kind int

const (
	// Counter trends are the plain difference, used for rain.
	Counter Kind = iota
	// Rate trends are the difference per hour, used for pressure and temperature.
	Rate
)

type Metric struct {
	Name  string
	Kind  Kind
	Value func(store.Row) float64
}

var (
	Pressure    = Metric{Name: "pressure", Kind: Rate, Value: func(r store.Row) float64 { return r.Pressure }}
	Temperature = Metric{Name: "temperature", Kind: Rate, Value: func(r store.Row) float64 { return r.Temperature }}
	Humidity    = Metric{Name: "humidity", Kind: Rate, Value: func(r store.Row) float64 { return r.Humidity }}
	RainCounter = Metric{Name: "rain_counter", Kind: Counter, Value: func(r store.Row) float64 { return r.RainCounter }}
)

// Engine answers windowed delta queries from the stored history. It never writes.
type Engine struct {
	series    store.TimeSeries
	tolerance time.Duration
}

func NewEngine(series store.TimeSeries, tolerance time.Duration) *Engine {
	return &Engine{series: series, tolerance: tolerance}
}

// RowNear returns the first stored row at or after t, provided it is within tolerance of t.
func (e *Engine) RowNear(ctx context.Context, t time.Time) (store.Row, bool) {
	r, err := e.series.FirstAtOrAfter(ctx, t)
	if err != nil {
		if !errors.Is(err, store.ErrNoData) {
			logger.Errorf("Trend query failed [%v]", err)
		}
		return store.Row{}, false
	}
	if r.Timestamp.After(t.Add(e.tolerance)) {
		return store.Row{}, false
	}
	return r, true
}

// DeltaOver compares current against the stored value window ago. 0 when history is too short.
func (e *Engine) DeltaOver(ctx context.Context, m Metric, current float64, now time.Time, window time.Duration) float64 {
	r, ok := e.RowNear(ctx, now.Add(-window))
	if !ok {
		return 0
	}
	diff := current - m.Value(r)
	if m.Kind == Counter {
		return diff
	}
	return diff / window.Hours()
}

// CounterAt is the stored rain counter near t.
func (e *Engine) CounterAt(ctx context.Context, t time.Time) (float64, bool) {
	r, ok := e.RowNear(ctx, t)
	if !ok {
		return 0, false
	}
	return r.RainCounter, true
}

type Trends struct {
	Pressure3h    float64   `json:"pressure_trend_3h"`
	Temperature1h float64   `json:"temperature_trend_1h"`
	Humidity1h    float64   `json:"humidity_trend_1h"`
	Updated       time.Time `json:"updated"`
}

// Cache holds the last computed trend set for concurrent readers.
type Cache struct {
	mu     sync.RWMutex
	engine *Engine
	trends Trends
}

func NewCache(engine *Engine) *Cache {
	return &Cache{engine: engine}
}

func (c *Cache) Refresh(ctx context.Context, current store.Row) Trends {
	t := Trends{
		Pressure3h:    c.engine.DeltaOver(ctx, Pressure, current.Pressure, current.Timestamp, 3*time.Hour),
		Temperature1h: c.engine.DeltaOver(ctx, Temperature, current.Temperature, current.Timestamp, time.Hour),
		Humidity1h:    c.engine.DeltaOver(ctx, Humidity, current.Humidity, current.Timestamp, time.Hour),
		Updated:       current.Timestamp,
	}
	c.mu.Lock()
	c.trends = t
	c.mu.Unlock()
	logger.Debugf("Trends pressure [%.2f] temp [%.2f] humidity [%.2f]", t.Pressure3h, t.Temperature1h, t.Humidity1h)
	return t
}

func (c *Cache) Get() Trends {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trends
}
