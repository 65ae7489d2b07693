package rollover

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/persist"
	"github.com/gr-butler/wxcore/rain"
	"github.com/gr-butler/wxcore/records"
	"github.com/gr-butler/wxcore/store"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

var ErrSentinelExtremes = errors.New("day has no temperature extremes")

type Kind string

const (
	Day      Kind = "day"
	Midnight Kind = "midnight"
	NineAm   Kind = "9am"
)

// Current is the instantaneous state used to seed a new period.
type Current struct {
	Valid       bool
	Temperature float64
	Humidity    float64
	Pressure    float64
	DewPoint    float64
	FeelsLike   float64
	AppTemp     float64
	WindChill   float64
	HeatIndex   float64
	Humidex     float64
}

// DaySummary is what the station accumulated over the closing day.
type DaySummary struct {
	AvgTemp         float64
	WindRun         float64
	DominantBearing int
	Sunshine        float64
	ET              float64
}

// Source is the station side of a rollover.
type Source interface {
	// Flush completes any pending per-minute work before the day is closed.
	Flush()
	Current() Current
	// CloseDay returns the day's accumulators and starts new ones.
	CloseDay() DaySummary
	// ResetMidnight restarts the midnight referenced accumulators.
	ResetMidnight()
}

// DayPublisher receives every appended DayRecord.
type DayPublisher interface {
	PublishDayRecord(d store.DayRecord)
}

type Config struct {
	RolloverHour    int
	YearStartMonth  time.Month
	WeekStart       time.Weekday
	DryDayThreshold float64
	HeatingBase     float64
	CoolingBase     float64
	ResetETAnnually bool
}

func ConfigFrom(s env.StationConfig) Config {
	return Config{
		RolloverHour:    s.RolloverHour,
		YearStartMonth:  time.Month(s.YearStartMonth),
		WeekStart:       s.WeekStart,
		DryDayThreshold: s.DryDayThreshold,
		HeatingBase:     s.HeatingBase,
		CoolingBase:     s.CoolingBase,
		ResetETAnnually: s.ResetETAnnually,
	}
}

// Carry is the state handed from one day to the next.
type Carry struct {
	DryDays   int
	WetDays   int
	WeekRain  float64
	MonthRain float64
	YearRain  float64
	MonthHDD  float64
	MonthCDD  float64
	YearHDD   float64
	YearCDD   float64
	AnnualET  float64
	// day of month each trigger last fired on, 0 when never
	LastDay      int
	LastMidnight int
	LastNineAm   int
}

// Machine runs the day, midnight and 9am rollovers. Callers must hold the station's processing
// lock around Tick so a rollover never interleaves with a reading.
type Machine struct {
	mu         sync.Mutex
	cfg        Config
	tracker    *records.Tracker
	rain       *rain.Machine
	daily      *records.DailyHighLow
	days       *store.DayLog
	source     Source
	sink       alarm.Sink
	file       *persist.File
	publishers []DayPublisher
	carry      Carry
	onRollover func(k Kind)
}

func New(cfg Config, tracker *records.Tracker, r *rain.Machine, daily *records.DailyHighLow, days *store.DayLog,
	source Source, sink alarm.Sink, file *persist.File) (*Machine, error) {
	m := &Machine{
		cfg:     cfg,
		tracker: tracker,
		rain:    r,
		daily:   daily,
		days:    days,
		source:  source,
		sink:    sink,
		file:    file,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine) AddPublisher(p DayPublisher) {
	m.publishers = append(m.publishers, p)
}

func (m *Machine) OnRollover(fn func(k Kind)) {
	m.onRollover = fn
}

func (m *Machine) load() error {
	if m.file == nil {
		return nil
	}
	doc, err := m.file.Load()
	if err != nil {
		return err
	}
	sec := doc.Section("carry")
	m.carry = Carry{
		DryDays:      sec.Key("dry_days").MustInt(0),
		WetDays:      sec.Key("wet_days").MustInt(0),
		WeekRain:     sec.Key("week_rain").MustFloat64(0),
		MonthRain:    sec.Key("month_rain").MustFloat64(0),
		YearRain:     sec.Key("year_rain").MustFloat64(0),
		MonthHDD:     sec.Key("month_hdd").MustFloat64(0),
		MonthCDD:     sec.Key("month_cdd").MustFloat64(0),
		YearHDD:      sec.Key("year_hdd").MustFloat64(0),
		YearCDD:      sec.Key("year_cdd").MustFloat64(0),
		AnnualET:     sec.Key("annual_et").MustFloat64(0),
		LastDay:      sec.Key("last_day").MustInt(0),
		LastMidnight: sec.Key("last_midnight").MustInt(0),
		LastNineAm:   sec.Key("last_nineam").MustInt(0),
	}
	return nil
}

func (m *Machine) saveLocked() {
	if m.file == nil {
		return
	}
	c := m.carry
	doc := ini.Empty()
	sec := doc.Section("carry")
	set := func(k string, v float64) { sec.Key(k).SetValue(persist.FormatFloat(v)) }
	set("dry_days", float64(c.DryDays))
	set("wet_days", float64(c.WetDays))
	set("week_rain", c.WeekRain)
	set("month_rain", c.MonthRain)
	set("year_rain", c.YearRain)
	set("month_hdd", c.MonthHDD)
	set("month_cdd", c.MonthCDD)
	set("year_hdd", c.YearHDD)
	set("year_cdd", c.YearCDD)
	set("annual_et", c.AnnualET)
	set("last_day", float64(c.LastDay))
	set("last_midnight", float64(c.LastMidnight))
	set("last_nineam", float64(c.LastNineAm))
	if err := m.file.Save(doc); err != nil {
		logger.Errorf("Failed to save rollover state [%v]", err)
		if m.sink != nil {
			m.sink.Raise(alarm.PersistFailure, fmt.Sprintf("Failed to save rollover state: %v", err))
		}
	}
}

func (m *Machine) Carry() Carry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carry
}

// MetDayStart is the start of the meteorological day containing t.
func (m *Machine) MetDayStart(t time.Time) time.Time {
	start := time.Date(t.Year(), t.Month(), t.Day(), m.cfg.RolloverHour, 0, 0, 0, t.Location())
	if t.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// Stale reports whether Today was started in an earlier meteorological day than now, which
// happens when the process was down over a rollover.
func (m *Machine) Stale(now time.Time) bool {
	started := m.tracker.Started(records.Today)
	if started.IsZero() {
		return false
	}
	return started.Before(m.MetDayStart(now))
}

// Tick fires whichever triggers are due at now and returns them in the order they ran.
func (m *Machine) Tick(now time.Time) []Kind {
	var fired []Kind
	day := now.Day()

	m.mu.Lock()
	c := m.carry
	m.mu.Unlock()

	if now.Hour() == 0 && c.LastMidnight != day {
		m.MidnightRollover(now)
		fired = append(fired, Midnight)
	}
	if now.Hour() == env.NineAmHour && c.LastNineAm != day {
		m.NineAmRollover(now)
		fired = append(fired, NineAm)
	}
	if (now.Hour() == m.cfg.RolloverHour && c.LastDay != day) || m.Stale(now) {
		if err := m.DayRollover(now); err != nil {
			logger.Errorf("Day rollover [%v]", err)
		}
		fired = append(fired, Day)
	}
	return fired
}

func (m *Machine) seeds() map[string]float64 {
	cur := m.source.Current()
	if !cur.Valid {
		return nil
	}
	return map[string]float64{
		records.HighTemp.Name:      cur.Temperature,
		records.LowTemp.Name:       cur.Temperature,
		records.HighHumidity.Name:  cur.Humidity,
		records.LowHumidity.Name:   cur.Humidity,
		records.HighPressure.Name:  cur.Pressure,
		records.LowPressure.Name:   cur.Pressure,
		records.HighDewPoint.Name:  cur.DewPoint,
		records.LowDewPoint.Name:   cur.DewPoint,
		records.HighFeelsLike.Name: cur.FeelsLike,
		records.LowFeelsLike.Name:  cur.FeelsLike,
		records.HighAppTemp.Name:   cur.AppTemp,
		records.LowAppTemp.Name:    cur.AppTemp,
		records.HighHeatIndex.Name: cur.HeatIndex,
		records.LowWindChill.Name:  cur.WindChill,
		records.HighHumidex.Name:   cur.Humidex,
	}
}

// MidnightRollover restarts the midnight referenced rain baseline, temperature pair and sunshine.
func (m *Machine) MidnightRollover(now time.Time) {
	cur := m.source.Current()
	m.rain.ResetMidnight()
	if cur.Valid {
		m.daily.ResetMidnight(cur.Temperature, now)
	}
	m.source.ResetMidnight()

	m.mu.Lock()
	m.carry.LastMidnight = now.Day()
	m.saveLocked()
	m.mu.Unlock()
	logger.Infof("Midnight rollover at [%v]", now.Format(time.RFC3339))
	m.fired(Midnight)
}

func (m *Machine) NineAmRollover(now time.Time) {
	cur := m.source.Current()
	if cur.Valid {
		m.daily.ResetNineAm(cur.Temperature, now)
	}
	m.mu.Lock()
	m.carry.LastNineAm = now.Day()
	m.saveLocked()
	m.mu.Unlock()
	logger.Infof("9am rollover at [%v]", now.Format(time.RFC3339))
	m.fired(NineAm)
}

func (m *Machine) fired(k Kind) {
	if m.onRollover != nil {
		m.onRollover(k)
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayRollover closes the meteorological day. Only a day without temperature extremes is
// skipped, and then only the DayRecord append, the rest of the sequence always runs.
func (m *Machine) DayRollover(now time.Time) error {
	m.source.Flush()
	summary := m.source.CloseDay()

	closing := dateOf(m.MetDayStart(now.Add(-time.Minute)))
	if started := m.tracker.Started(records.Today); !started.IsZero() && started.Before(closing) {
		// catching up after downtime, label the day by when it started
		closing = dateOf(m.MetDayStart(started))
	}
	logger.Infof("Day rollover at [%v] closing [%v]", now.Format(time.RFC3339), closing.Format("2006-01-02"))

	yesterdayRain := m.rain.StartNewDay()
	today := m.tracker.Records(records.Today)
	rec := m.buildDayRecord(closing, today, summary, yesterdayRain)

	var result error
	if records.IsSentinel(rec.HighTemp) || records.IsSentinel(rec.LowTemp) {
		result = fmt.Errorf("%w: day record for %s not written", ErrSentinelExtremes, closing.Format("2006-01-02"))
		logger.Error(result)
		if m.sink != nil {
			m.sink.Raise(alarm.Rollover, result.Error())
		}
	} else {
		if err := m.days.Append(rec); err != nil {
			logger.Errorf("Failed to append day record [%v]", err)
		} else {
			for _, p := range m.publishers {
				p.PublishDayRecord(rec)
			}
		}
		m.dayEndRecords(rec, closing)
	}

	m.mu.Lock()
	m.closeDayLocked(rec, yesterdayRain, closing)
	c := m.carry
	m.mu.Unlock()

	m.tracker.ObserveLongTerm(records.LongestDryPeriod, float64(c.DryDays), closing)
	m.tracker.ObserveLongTerm(records.LongestWetPeriod, float64(c.WetDays), closing)
	m.tracker.ObserveLongTerm(records.HighDailyRain, yesterdayRain, closing)

	seeds := m.seeds()
	m.tracker.CopyToYesterday()
	m.tracker.Reset(records.Today, seeds, now)

	current := m.MetDayStart(now)
	if current.Year() != closing.Year() || current.Month() != closing.Month() {
		m.tracker.ObserveLongTerm(records.HighMonthlyRain, c.MonthRain, closing)
		m.tracker.Archive(records.Month, closing.Format("2006-01"))
		m.tracker.Reset(records.Month, seeds, now)
		m.mu.Lock()
		m.carry.MonthRain, m.carry.MonthHDD, m.carry.MonthCDD = 0, 0, 0
		m.mu.Unlock()

		if m.rainYear(current) != m.rainYear(closing) {
			m.tracker.Archive(records.Year, fmt.Sprintf("%d", m.rainYear(closing)))
			m.tracker.Reset(records.Year, seeds, now)
			m.mu.Lock()
			m.carry.YearRain, m.carry.YearHDD, m.carry.YearCDD = 0, 0, 0
			if m.cfg.ResetETAnnually {
				m.carry.AnnualET = 0
			}
			m.mu.Unlock()
			logger.Infof("New rain year started [%v]", now.Format("2006-01"))
		}
	}

	m.mu.Lock()
	m.carry.WeekRain = m.weekRainLocked(now)
	m.carry.LastDay = current.Day()
	m.saveLocked()
	m.mu.Unlock()

	if m.sink != nil {
		m.sink.Clear(alarm.NewRecord)
		if result == nil {
			m.sink.Clear(alarm.Rollover)
		}
	}
	m.fired(Day)
	return result
}

// rainYear is the calendar year in which the year containing t started.
func (m *Machine) rainYear(t time.Time) int {
	if t.Month() < m.cfg.YearStartMonth {
		return t.Year() - 1
	}
	return t.Year()
}

func (m *Machine) buildDayRecord(date time.Time, today map[string]records.ExtremeRecord, s DaySummary, rainMM float64) store.DayRecord {
	get := func(metric records.Metric) (float64, time.Time) {
		r, ok := today[metric.Name]
		if !ok {
			return metric.Sentinel(), time.Time{}
		}
		return r.Value, r.Timestamp
	}
	value := func(metric records.Metric) float64 {
		v, _ := get(metric)
		if records.IsSentinel(v) {
			return 0
		}
		return v
	}

	d := store.DayRecord{Date: date, Rain: rainMM}
	d.HighTemp, d.HighTempTime = get(records.HighTemp)
	d.LowTemp, d.LowTempTime = get(records.LowTemp)
	d.HighGust, d.HighGustTime = get(records.HighGust)
	if records.IsSentinel(d.HighGust) {
		d.HighGust = 0
	}
	d.HighRainRate, d.HighRainRateTime = get(records.HighRainRate)
	if records.IsSentinel(d.HighRainRate) {
		d.HighRainRate = 0
	}
	d.HighWind = value(records.HighWind)
	d.HighHourlyRain = value(records.HighHourlyRain)
	d.HighPressure = value(records.HighPressure)
	d.LowPressure = value(records.LowPressure)
	d.HighHumidity = value(records.HighHumidity)
	d.LowHumidity = value(records.LowHumidity)
	d.HighDewPoint = value(records.HighDewPoint)
	d.LowDewPoint = value(records.LowDewPoint)
	d.HighFeelsLike = value(records.HighFeelsLike)
	d.LowFeelsLike = value(records.LowFeelsLike)
	d.HighHeatIndex = value(records.HighHeatIndex)
	d.LowWindChill = value(records.LowWindChill)
	d.HighAppTemp = value(records.HighAppTemp)
	d.LowAppTemp = value(records.LowAppTemp)
	d.HighHumidex = value(records.HighHumidex)
	d.HighSolar = value(records.HighSolar)
	d.HighUV = value(records.HighUV)

	d.AvgTemp = s.AvgTemp
	d.WindRun = s.WindRun
	d.DominantBearing = s.DominantBearing
	d.Sunshine = s.Sunshine
	d.ET = s.ET
	d.HeatingDegreeDays = math.Max(0, m.cfg.HeatingBase-s.AvgTemp)
	d.CoolingDegreeDays = math.Max(0, s.AvgTemp-m.cfg.CoolingBase)
	return d
}

// dayEndRecords checks the extremes only known once the day is complete.
func (m *Machine) dayEndRecords(d store.DayRecord, date time.Time) {
	m.tracker.ObserveLongTerm(records.HighMinTemp, d.LowTemp, date)
	m.tracker.ObserveLongTerm(records.LowMaxTemp, d.HighTemp, date)
	m.tracker.ObserveLongTerm(records.HighDailyTempRange, d.HighTemp-d.LowTemp, date)
	m.tracker.ObserveLongTerm(records.LowDailyTempRange, d.HighTemp-d.LowTemp, date)
	m.tracker.ObserveLongTerm(records.HighWindRun, d.WindRun, date)
}

func (m *Machine) closeDayLocked(d store.DayRecord, rainMM float64, date time.Time) {
	c := &m.carry
	if rainMM < m.cfg.DryDayThreshold {
		c.DryDays++
		c.WetDays = 0
	} else {
		c.WetDays++
		c.DryDays = 0
	}
	c.MonthRain += rainMM
	c.YearRain += rainMM
	c.AnnualET += d.ET
	if !records.IsSentinel(d.HighTemp) && !records.IsSentinel(d.LowTemp) {
		c.MonthHDD += d.HeatingDegreeDays
		c.MonthCDD += d.CoolingDegreeDays
		c.YearHDD += d.HeatingDegreeDays
		c.YearCDD += d.CoolingDegreeDays
	}
	logger.Infof("Day [%v] rain [%.1f] dry days [%d] wet days [%d] month rain [%.1f]",
		date.Format("2006-01-02"), rainMM, c.DryDays, c.WetDays, c.MonthRain)
}

// weekStart is the date the current week began on.
func (m *Machine) weekStart(now time.Time) time.Time {
	today := dateOf(m.MetDayStart(now))
	back := (int(today.Weekday()) - int(m.cfg.WeekStart) + 7) % 7
	return today.AddDate(0, 0, -back)
}

// weekRainLocked re-sums the closed days of the current week from the day log.
func (m *Machine) weekRainLocked(now time.Time) float64 {
	total := 0.0
	for _, d := range m.days.Since(m.weekStart(now)) {
		total += d.Rain
	}
	return total
}
