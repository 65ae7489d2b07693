package validate

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/env"
	logger "github.com/sirupsen/logrus"
)

var (
	ErrDeltaExceeded = errors.New("delta exceeded")
	ErrOutOfRange    = errors.New("value out of range")
	ErrUnknownMetric = errors.New("unknown metric")
)

type Metric string

const (
	Temperature Metric = "temperature"
	Humidity    Metric = "humidity"
	Pressure    Metric = "pressure"
	Gust        Metric = "gust"
	Wind        Metric = "wind"
	Solar       Metric = "solar"
	UV          Metric = "uv"
	RainRate    Metric = "rainrate"
)

// Rule is one metric's filter. A MaxDelta of zero disables the delta check and range failures
// then raise Spike rather than the shared limit alarm.
type Rule struct {
	MaxDelta float64
	Low      float64
	High     float64
	Spike    alarm.Kind
}

// Validator rejects readings that jump too far from the previous accepted value or fall outside the configured band.
type Validator struct {
	mu         sync.Mutex
	rules      map[Metric]Rule
	sink       alarm.Sink
	limitOwner Metric
	rejected   func(m Metric, reason error)
}

func New(limits env.LimitsConfig, maxRainRate float64, sink alarm.Sink) *Validator {
	rule := func(l env.Limit, k alarm.Kind) Rule {
		return Rule{MaxDelta: l.MaxDelta, Low: l.Low, High: l.High, Spike: k}
	}
	return &Validator{
		sink: sink,
		rules: map[Metric]Rule{
			Temperature: rule(limits.Temperature, alarm.TempSpike),
			Humidity:    rule(limits.Humidity, alarm.HumiditySpike),
			Pressure:    rule(limits.Pressure, alarm.PressureSpike),
			Gust:        rule(limits.Gust, alarm.GustSpike),
			Wind:        rule(limits.Wind, alarm.WindSpike),
			Solar:       rule(limits.Solar, alarm.SolarSpike),
			UV:          rule(limits.UV, alarm.UVSpike),
			RainRate:    {Low: 0, High: maxRainRate, Spike: alarm.RainRateSpike},
		},
	}
}

// OnReject registers a callback invoked for every rejected reading.
func (v *Validator) OnReject(fn func(m Metric, reason error)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejected = fn
}

// Validate returns nil when newValue is acceptable. On rejection an alarm is raised and the
// caller must leave previous untouched.
func (v *Validator) Validate(m Metric, newValue, previous float64, ts time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.check(m, newValue, previous, ts)
}

// ValidateWind checks gust before speed, they share one reading so either failing rejects both.
func (v *Validator) ValidateWind(gust, prevGust, speed, prevSpeed float64, ts time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(Gust, gust, prevGust, ts); err != nil {
		return err
	}
	return v.check(Wind, speed, prevSpeed, ts)
}

func (v *Validator) check(m Metric, newValue, previous float64, ts time.Time) error {
	r, ok := v.rules[m]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, m)
	}

	if r.MaxDelta > 0 && previous != env.Uninitialised && math.Abs(newValue-previous) > r.MaxDelta {
		msg := fmt.Sprintf("%s spike: old [%.2f] new [%.2f] max delta [%.2f] at [%s]",
			m, previous, newValue, r.MaxDelta, ts.Format(time.RFC3339))
		return v.reject(m, r.Spike, msg, ErrDeltaExceeded)
	}

	if newValue < r.Low || newValue > r.High {
		msg := fmt.Sprintf("%s out of range: old [%.2f] new [%.2f] limits [%.2f, %.2f] at [%s]",
			m, previous, newValue, r.Low, r.High, ts.Format(time.RFC3339))
		// a rule without a delta check reports its range failures as its own spike
		if r.MaxDelta == 0 {
			return v.reject(m, r.Spike, msg, ErrOutOfRange)
		}
		v.limitOwner = m
		return v.reject(m, alarm.Limit, msg, ErrOutOfRange)
	}

	if v.sink != nil {
		v.sink.Clear(r.Spike)
		if v.limitOwner == m {
			v.sink.Clear(alarm.Limit)
			v.limitOwner = ""
		}
	}
	return nil
}

func (v *Validator) reject(m Metric, kind alarm.Kind, msg string, reason error) error {
	logger.Warnf("Rejected reading [%v]", msg)
	if v.sink != nil {
		v.sink.Raise(kind, msg)
	}
	if v.rejected != nil {
		v.rejected(m, reason)
	}
	return fmt.Errorf("%w: %s", reason, msg)
}
