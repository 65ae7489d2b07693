package rain

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/buffer"
	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/persist"
	"github.com/gr-butler/wxcore/validate"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const section = "rain"

// Rebaser corrects already stored counter values after a confirmed discontinuity.
type Rebaser interface {
	AdjustRainCounter(ctx context.Context, from time.Time, offset float64) error
}

// CounterHistory gives the stored counter value at a past instant.
type CounterHistory interface {
	CounterAt(ctx context.Context, t time.Time) (float64, bool)
}

// RateValidator vets the station's own rain rate before it replaces the current one.
type RateValidator interface {
	Validate(m validate.Metric, newValue, previous float64, ts time.Time) error
}

type Config struct {
	Multiplier       float64
	MaxIncrement     float64
	UseStationRate   bool
	PowerCycleRebase bool
}

func ConfigFrom(s env.StationConfig) Config {
	return Config{
		Multiplier:       s.RainMultiplier,
		MaxIncrement:     s.MaxRainIncrement,
		UseStationRate:   s.UseStationRainRate,
		PowerCycleRebase: s.PowerCycleRebase,
	}
}

// State is everything needed to resume exactly after a restart.
type State struct {
	Initialised       bool
	Counter           float64
	CounterAtDayStart float64
	CounterAtMidnight float64
	AnomalyCount      int
	PendingCounter    float64
}

func (s State) Pending() bool {
	return s.AnomalyCount > 0
}

// Machine turns the station's ever increasing rain counter into day totals and a rate.
// Uninitialised -> Tracking, with AnomalyPending entered on a reset or jump and left either by a
// return to trend or by a second consecutive anomaly that confirms it.
type Machine struct {
	mu      sync.Mutex
	cfg     Config
	state   State
	file    *persist.File
	sink    alarm.Sink
	rebaser Rebaser
	history CounterHistory
	rates   RateValidator
	recent  *buffer.SampleBuffer
	rate    float64
	updated time.Time
	onSave  func(err error)
}

// NewMachine loads any saved state from file.
func NewMachine(cfg Config, file *persist.File, sink alarm.Sink, rebaser Rebaser, history CounterHistory) (*Machine, error) {
	m := &Machine{
		cfg:     cfg,
		file:    file,
		sink:    sink,
		rebaser: rebaser,
		history: history,
		recent:  buffer.NewBuffer(env.WindRingSize),
	}
	if file == nil {
		return m, nil
	}
	doc, err := file.Load()
	if err != nil {
		return nil, err
	}
	sec := doc.Section(section)
	m.state = State{
		Initialised:       sec.Key("initialised").MustBool(false),
		Counter:           sec.Key("counter").MustFloat64(0),
		CounterAtDayStart: sec.Key("counter_day_start").MustFloat64(0),
		CounterAtMidnight: sec.Key("counter_midnight").MustFloat64(0),
		AnomalyCount:      sec.Key("anomaly_count").MustInt(0),
		PendingCounter:    sec.Key("pending_counter").MustFloat64(0),
	}
	if m.state.Initialised {
		logger.Infof("Rain state restored counter [%.2f] day start [%.2f] midnight [%.2f]",
			m.state.Counter, m.state.CounterAtDayStart, m.state.CounterAtMidnight)
	}
	return m, nil
}

// OnSave registers a callback receiving the result of every state write.
func (m *Machine) OnSave(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSave = fn
}

// SetRateValidator makes a rejected station rate leave the current rate in place.
func (m *Machine) SetRateValidator(v RateValidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = v
}

// Ingest folds one counter reading in. stationRate is used only when hasRate is true and the
// machine is configured to trust the station's rate.
func (m *Machine) Ingest(ctx context.Context, counter, stationRate float64, hasRate bool, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.state
	if !s.Initialised {
		*s = State{Initialised: true, Counter: counter, CounterAtDayStart: counter, CounterAtMidnight: counter}
		logger.Infof("Rain counter initialised at [%.2f]", counter)
		m.recent.AddItem(counter, ts)
		m.updated = ts
		m.save()
		return
	}

	switch {
	case m.cfg.PowerCycleRebase && counter < s.Counter && math.Abs(counter-s.CounterAtMidnight) < env.MeasuredEpsilon:
		offset := counter - s.Counter
		logger.Warnf("Rain counter returned to midnight value [%.2f], console power cycle, rebasing by [%.2f]", counter, offset)
		m.rebase(ctx, offset, ts)
		s.Counter = counter
		s.AnomalyCount = 0

	case counter < s.CounterAtDayStart || counter-s.Counter > m.cfg.MaxIncrement:
		s.AnomalyCount++
		if s.AnomalyCount == 1 {
			s.PendingCounter = counter
			msg := fmt.Sprintf("Rain counter anomaly: previous [%.2f] new [%.2f] day start [%.2f], waiting for confirmation",
				s.Counter, counter, s.CounterAtDayStart)
			logger.Warn(msg)
			if m.sink != nil {
				m.sink.Raise(alarm.RainSpike, msg)
			}
			break
		}
		offset := s.PendingCounter - s.Counter
		logger.Warnf("Rain counter anomaly confirmed, previous [%.2f] now [%.2f], rebasing by [%.2f]", s.Counter, counter, offset)
		m.rebase(ctx, offset, ts)
		s.Counter = counter
		s.AnomalyCount = 0
		s.PendingCounter = 0
		if m.sink != nil {
			m.sink.Clear(alarm.RainSpike)
			m.sink.Raise(alarm.RainReset, fmt.Sprintf("Rain counter reset confirmed, baselines moved by [%.2f]", offset))
		}

	default:
		if s.AnomalyCount > 0 {
			logger.Infof("Rain counter back on trend at [%.2f], anomaly [%.2f] discarded", counter, s.PendingCounter)
			if m.sink != nil {
				m.sink.Clear(alarm.RainSpike)
			}
		}
		s.Counter = counter
		s.AnomalyCount = 0
		s.PendingCounter = 0
	}

	m.recent.AddItem(s.Counter, ts)
	m.updateRate(stationRate, hasRate, ts)
	m.updated = ts
	m.save()
}

// rebase moves both baselines, and the stored history, by offset so rain already counted is kept.
func (m *Machine) rebase(ctx context.Context, offset float64, ts time.Time) {
	s := &m.state
	s.CounterAtDayStart += offset
	s.CounterAtMidnight += offset
	m.recent.Reset()
	if m.rebaser == nil {
		return
	}
	if err := m.rebaser.AdjustRainCounter(ctx, ts.Add(-24*time.Hour), offset); err != nil {
		logger.Errorf("Failed to correct stored rain counter [%v]", err)
	}
}

func (m *Machine) updateRate(stationRate float64, hasRate bool, ts time.Time) {
	if m.cfg.UseStationRate && hasRate {
		if m.rates != nil {
			if err := m.rates.Validate(validate.RainRate, stationRate, m.rate, ts); err != nil {
				return
			}
		}
		m.rate = stationRate * m.cfg.Multiplier
		return
	}

	past, ok := m.recent.FirstAtOrAfter(ts.Add(-env.RainRateWindow))
	if !ok {
		m.rate = 0
		return
	}
	m.rate = math.Max(0, (m.state.Counter-past.Value)*m.cfg.Multiplier/env.RainRateWindow.Hours())
}

func (m *Machine) save() {
	if m.file == nil {
		return
	}
	doc := ini.Empty()
	sec := doc.Section(section)
	sec.Key("initialised").SetValue(fmt.Sprintf("%t", m.state.Initialised))
	sec.Key("counter").SetValue(persist.FormatFloat(m.state.Counter))
	sec.Key("counter_day_start").SetValue(persist.FormatFloat(m.state.CounterAtDayStart))
	sec.Key("counter_midnight").SetValue(persist.FormatFloat(m.state.CounterAtMidnight))
	sec.Key("anomaly_count").SetValue(fmt.Sprintf("%d", m.state.AnomalyCount))
	sec.Key("pending_counter").SetValue(persist.FormatFloat(m.state.PendingCounter))
	sec.Key("updated").SetValue(persist.FormatTime(m.updated))

	err := m.file.Save(doc)
	if err != nil {
		logger.Errorf("Failed to save rain state [%v]", err)
	}
	if m.onSave != nil {
		m.onSave(err)
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Initialised() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Initialised
}

func (m *Machine) Counter() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Counter
}

// RainToday is the rain since the meteorological day started.
func (m *Machine) RainToday() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sinceLocked(m.state.CounterAtDayStart)
}

func (m *Machine) RainSinceMidnight() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sinceLocked(m.state.CounterAtMidnight)
}

func (m *Machine) sinceLocked(baseline float64) float64 {
	if !m.state.Initialised {
		return 0
	}
	return math.Max(0, (m.state.Counter-baseline)*m.cfg.Multiplier)
}

// Rate is mm per hour.
func (m *Machine) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// RainSince sums the rain since t using the stored counter history, 0 when there is none that old.
func (m *Machine) RainSince(ctx context.Context, t time.Time) float64 {
	m.mu.Lock()
	counter := m.state.Counter
	mult := m.cfg.Multiplier
	initialised := m.state.Initialised
	m.mu.Unlock()

	if !initialised || m.history == nil {
		return 0
	}
	past, ok := m.history.CounterAt(ctx, t)
	if !ok {
		return 0
	}
	return math.Max(0, (counter-past)*mult)
}

// StartNewDay closes the meteorological day. It returns the day's rain and moves the day start
// baseline to the current counter.
func (m *Machine) StartNewDay() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	yesterday := m.sinceLocked(m.state.CounterAtDayStart)
	m.state.CounterAtDayStart = m.state.Counter
	m.save()
	logger.Infof("Rain day closed with [%.2f] mm, day start now [%.2f]", yesterday, m.state.Counter)
	return yesterday
}

func (m *Machine) ResetMidnight() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CounterAtMidnight = m.state.Counter
	m.save()
}
