package station

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/data"
	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/persist"
	"github.com/gr-butler/wxcore/rain"
	"github.com/gr-butler/wxcore/records"
	"github.com/gr-butler/wxcore/rollover"
	"github.com/gr-butler/wxcore/store"
	"github.com/gr-butler/wxcore/trend"
	"github.com/gr-butler/wxcore/units"
	"github.com/gr-butler/wxcore/validate"
	"github.com/gr-butler/wxcore/wind"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
)

// ErrClockAnomaly ends Run when the wall clock jumps further forward than the configured limit.
var ErrClockAnomaly = errors.New("clock anomaly")

const (
	temperature = "temperature"
	humidity    = "humidity"
	pressure    = "pressure"
	solar       = "solar"
	uv          = "uv"

	rainTimeout = time.Second * 5
)

// Ingestor is what a driver feeds. Wind is in mph, rain counter in the station's own units
// (scaled by the rain multiplier), pressure in hPa.
type Ingestor interface {
	IngestTemperature(tempC float64, ts time.Time)
	IngestHumidity(rh float64, ts time.Time)
	IngestPressure(hPa float64, ts time.Time)
	IngestWind(gust, bearing, speed float64, ts time.Time)
	IngestRain(counter, rate float64, hasRate bool, ts time.Time)
	IngestSolar(wm2 float64, ts time.Time)
	IngestUV(index float64, ts time.Time)
	// IngestET takes the station's evapotranspiration total for the day in mm.
	IngestET(mm float64, ts time.Time)
}

// RowWriter takes the per-minute row, normally the async store.Writer.
type RowWriter interface {
	WriteRow(r store.Row)
}

type Alarms interface {
	alarm.Sink
	Active() []alarm.Alarm
}

type Options struct {
	Station env.StationConfig
	Limits  env.LimitsConfig
	DataDir string
	Clock   clockwork.Clock
	Series  store.TimeSeries
	// Writer defaults to appending straight to Series.
	Writer  RowWriter
	Days    *store.DayLog
	Alarms  Alarms
	Audit   logger.FieldLogger
	Metrics *Metrics
}

type current struct {
	Temperature float64
	Humidity    float64
	Pressure    float64
	Solar       float64
	UV          float64
	hasTemp     bool
	hasHumidity bool
	hasPressure bool

	Gust        float64
	Speed       float64
	Bearing     float64
	WindAverage float64
	PeakGust    float64
	AvgBearing  int
	BearingFrom int
	BearingTo   int

	DewPoint  float64
	FeelsLike float64
	AppTemp   float64
	WindChill float64
	HeatIndex float64
	Humidex   float64

	RainHour float64
	Rain24h  float64
}

// Station is the processing core. Every Ingest call and every Tick runs under one lock so
// a rollover never sees half a reading.
type Station struct {
	mu      sync.Mutex
	cfg     env.StationConfig
	clock   clockwork.Clock
	series  store.TimeSeries
	writer  RowWriter
	alarms  Alarms
	metrics *Metrics

	readings  *data.WeatherData
	validator *validate.Validator
	wind      *wind.Engine
	rain      *rain.Machine
	tracker   *records.Tracker
	daily     *records.DailyHighLow
	roll      *rollover.Machine
	trends    *trend.Cache
	day       *day

	prevGust   float64
	prevSpeed  float64
	cur        current
	lastMinute time.Time
	tickTime   time.Time
	dirty      bool
	lastRow    store.Row

	snapMu    sync.RWMutex
	snapshot  Snapshot
	listeners []func(Snapshot)
}

type seriesWriter struct {
	series store.TimeSeries
}

func (w seriesWriter) WriteRow(r store.Row) {
	ctx, cancel := context.WithTimeout(context.Background(), rainTimeout)
	defer cancel()
	if err := w.series.Append(ctx, r); err != nil {
		logger.Errorf("Failed to write row [%v]", err)
	}
}

func New(o Options) (*Station, error) {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Series == nil {
		o.Series = store.NewMemoryStore()
	}
	if o.Writer == nil {
		o.Writer = seriesWriter{series: o.Series}
	}
	if o.Alarms == nil {
		o.Alarms = alarm.NewRegistry(o.Clock)
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if o.Days == nil {
		days, err := store.OpenDayLog(filepath.Join(o.DataDir, "dayfile.txt"), time.Local)
		if err != nil {
			return nil, err
		}
		o.Days = days
	}

	s := &Station{
		cfg:       o.Station,
		clock:     o.Clock,
		series:    o.Series,
		writer:    o.Writer,
		alarms:    o.Alarms,
		metrics:   o.Metrics,
		readings:  data.CreateWeatherData(temperature, humidity, pressure, solar, uv),
		validator: validate.New(o.Limits, o.Station.MaxRainRate, o.Alarms),
		wind:      wind.NewEngine(wind.ConfigFrom(o.Station)),
		prevGust:  env.Uninitialised,
		prevSpeed: env.Uninitialised,
	}
	s.validator.OnReject(s.metrics.rejected)

	var err error
	if s.tracker, err = records.NewTracker(o.DataDir, o.Audit, o.Alarms); err != nil {
		return nil, err
	}
	s.tracker.SetHooks(s.metrics.hooks())

	engine := trend.NewEngine(o.Series, o.Station.TrendTolerance)
	s.trends = trend.NewCache(engine)

	rainFile := persist.NewFile(filepath.Join(o.DataDir, "rain.ini"))
	// an async writer corrects the rows it still holds along with the stored ones
	var rebaser rain.Rebaser = o.Series
	if r, ok := o.Writer.(rain.Rebaser); ok {
		rebaser = r
	}
	if s.rain, err = rain.NewMachine(rain.ConfigFrom(o.Station), rainFile, o.Alarms, rebaser, engine); err != nil {
		return nil, fmt.Errorf("failed to load rain state: %w", err)
	}
	s.rain.SetRateValidator(s.validator)
	s.rain.OnSave(func(err error) {
		if err != nil {
			s.metrics.PersistFailed("rain")
			s.alarms.Raise(alarm.PersistFailure, fmt.Sprintf("Failed to save rain state: %v", err))
		}
	})

	if s.daily, err = records.NewDailyHighLow(persist.NewFile(filepath.Join(o.DataDir, "daily.ini"))); err != nil {
		return nil, fmt.Errorf("failed to load daily high/low: %w", err)
	}
	if s.day, err = loadDay(persist.NewFile(filepath.Join(o.DataDir, "day.ini"))); err != nil {
		return nil, fmt.Errorf("failed to load day accumulators: %w", err)
	}

	rollFile := persist.NewFile(filepath.Join(o.DataDir, "rollover.ini"))
	s.roll, err = rollover.New(rollover.ConfigFrom(o.Station), s.tracker, s.rain, s.daily, o.Days,
		rolloverSource{s: s}, o.Alarms, rollFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load rollover state: %w", err)
	}
	s.roll.OnRollover(s.metrics.rollover)
	return s, nil
}

// AddDayPublisher registers a receiver for each completed DayRecord.
func (s *Station) AddDayPublisher(p rollover.DayPublisher) {
	s.roll.AddPublisher(p)
}

// OnSnapshot registers fn to receive the snapshot after every processed minute.
func (s *Station) OnSnapshot(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Station) Tracker() *records.Tracker {
	return s.tracker
}

func (s *Station) Rollover() *rollover.Machine {
	return s.roll
}

// Start rebuilds the wind windows from stored history and opens any scope that has never been started.
func (s *Station) Start(ctx context.Context) {
	now := s.clock.Now()
	longest := s.cfg.AverageWindow
	for _, w := range []time.Duration{s.cfg.GustWindow, s.cfg.BearingWindow} {
		if w > longest {
			longest = w
		}
	}
	rows, err := s.series.Since(ctx, now.Add(-longest))
	if err != nil {
		logger.Errorf("Failed to load wind history [%v]", err)
	} else if len(rows) > 0 {
		s.wind.Rebuild(rows)
		logger.Infof("Wind windows rebuilt from [%d] rows", len(rows))
	}

	for _, scope := range []records.ScopeName{records.Today, records.Month, records.Year} {
		if s.tracker.Started(scope).IsZero() {
			s.tracker.Reset(scope, nil, now)
		}
	}
	if s.roll.Stale(now) {
		logger.Warnf("Today was started [%v], a rollover was missed", s.tracker.Started(records.Today).Format(time.RFC3339))
	}
}

// Run drives the station until ctx is cancelled. A forward clock jump beyond the configured limit
// stops it with ErrClockAnomaly.
func (s *Station) Run(ctx context.Context) error {
	s.Start(ctx)

	ticker := s.clock.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	last := s.wallNow()
	logger.Infof("Station running, tick [%v]", s.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return nil
		case <-ticker.Chan():
			now := s.wallNow()
			jump := now.Sub(last)
			if jump > s.cfg.ClockJumpLimit {
				msg := fmt.Sprintf("Clock jumped forward [%v] from [%v] to [%v]", jump,
					last.Format(time.RFC3339), now.Format(time.RFC3339))
				logger.Error(msg)
				s.alarms.Raise(alarm.ClockAnomaly, msg)
				s.Close()
				return fmt.Errorf("%w: %s", ErrClockAnomaly, msg)
			}
			if jump < 0 {
				logger.Warnf("Clock went backwards by [%v]", -jump)
			}
			last = now
			s.Tick(ctx, now)
		}
	}
}

// wallNow drops the monotonic reading so Sub compares wall time and sees suspend and clock steps.
func (s *Station) wallNow() time.Time {
	return s.clock.Now().Round(0)
}

// Close writes out everything held in memory.
func (s *Station) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.Flush()
	if err := s.day.save(); err != nil {
		s.metrics.PersistFailed("day")
	}
}

// Tick does the per-minute work when the minute has changed and runs any rollover that is due.
func (s *Station) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	minute := now.Truncate(time.Minute)
	if s.lastMinute.IsZero() {
		s.lastMinute = minute
	}
	s.tickTime = now
	processed := false
	if minute.After(s.lastMinute) {
		s.minuteLocked(ctx, now)
		s.lastMinute = minute
		processed = true
	}
	fired := s.roll.Tick(now)
	snap := s.snapshotLocked(now)
	listeners := s.listeners
	s.mu.Unlock()

	s.setSnapshot(snap)
	if processed || len(fired) > 0 {
		s.metrics.update(snap)
		for _, fn := range listeners {
			fn(snap)
		}
	}
}

// RefreshTrends recomputes the trend set against the last per-minute row.
func (s *Station) RefreshTrends(ctx context.Context) trend.Trends {
	s.mu.Lock()
	row := s.lastRow
	s.mu.Unlock()
	if row.Timestamp.IsZero() {
		return s.trends.Get()
	}
	return s.trends.Refresh(ctx, row)
}

// accept runs the spike and limit filters and stores the reading when it passes.
func (s *Station) accept(m validate.Metric, name string, v float64, ts time.Time) bool {
	if err := s.validator.Validate(m, v, s.readings.Previous(name), ts); err != nil {
		return false
	}
	s.readings.Add(name, v, ts)
	s.dirty = true
	return true
}

func (s *Station) IngestTemperature(tempC float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accept(validate.Temperature, temperature, tempC, ts) {
		return
	}
	s.cur.Temperature, s.cur.hasTemp = tempC, true
	s.tracker.Observe(records.HighTemp, tempC, ts)
	s.tracker.Observe(records.LowTemp, tempC, ts)
	s.daily.Observe(tempC, ts)
	s.deriveLocked(ts)
}

func (s *Station) IngestHumidity(rh float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accept(validate.Humidity, humidity, rh, ts) {
		return
	}
	s.cur.Humidity, s.cur.hasHumidity = rh, true
	s.tracker.Observe(records.HighHumidity, rh, ts)
	s.tracker.Observe(records.LowHumidity, rh, ts)
	s.deriveLocked(ts)
}

func (s *Station) IngestPressure(hPa float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accept(validate.Pressure, pressure, hPa, ts) {
		return
	}
	s.cur.Pressure, s.cur.hasPressure = hPa, true
	s.tracker.Observe(records.HighPressure, hPa, ts)
	s.tracker.Observe(records.LowPressure, hPa, ts)
}

func (s *Station) IngestWind(gust, bearing, speed float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validator.ValidateWind(gust, s.prevGust, speed, s.prevSpeed, ts); err != nil {
		return
	}
	s.prevGust, s.prevSpeed = gust, speed
	s.wind.RecordSample(gust, speed, bearing, ts)
	s.cur.Gust, s.cur.Speed, _ = s.wind.Latest()
	s.cur.Bearing = bearing
	s.windLocked(ts)
	s.dirty = true

	s.tracker.Observe(records.HighGust, s.cur.Gust, ts)
	s.tracker.Observe(records.HighWind, s.cur.WindAverage, ts)
	s.deriveLocked(ts)
}

func (s *Station) IngestRain(counter, rate float64, hasRate bool, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), rainTimeout)
	defer cancel()
	s.rain.Ingest(ctx, counter, rate, hasRate, ts)
	s.dirty = true
	s.tracker.Observe(records.HighRainRate, s.rain.Rate(), ts)
}

func (s *Station) IngestSolar(wm2 float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accept(validate.Solar, solar, wm2, ts) {
		return
	}
	s.cur.Solar = wm2
	s.tracker.Observe(records.HighSolar, wm2, ts)
}

func (s *Station) IngestUV(index float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accept(validate.UV, uv, index, ts) {
		return
	}
	s.cur.UV = index
	s.tracker.Observe(records.HighUV, index, ts)
}

func (s *Station) IngestET(mm float64, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mm < 0 {
		logger.Warnf("Ignoring negative ET [%.2f]", mm)
		return
	}
	s.day.setET(mm)
}

// windLocked slides the wind windows to now.
func (s *Station) windLocked(now time.Time) {
	s.cur.WindAverage = s.wind.AverageSpeed(now, s.cfg.AverageWindow)
	s.cur.PeakGust = s.wind.PeakGust(now, s.cfg.GustWindow)
	s.cur.AvgBearing, s.cur.BearingFrom, s.cur.BearingTo = s.wind.VectorAverageBearing(now, s.cfg.BearingWindow)
}

// deriveLocked recomputes the derived values and checks them against the records. They are
// rounded to the metric's decimals so noise below the displayed precision never sets a record.
func (s *Station) deriveLocked(ts time.Time) {
	if !s.cur.hasTemp {
		return
	}
	t := s.cur.Temperature
	kmh := units.MphToKmh(s.cur.WindAverage)
	s.cur.WindChill = units.Round(units.WindChill(t, kmh), records.LowWindChill.Decimals)
	s.tracker.Observe(records.LowWindChill, s.cur.WindChill, ts)
	if !s.cur.hasHumidity {
		return
	}
	rh := s.cur.Humidity
	s.cur.DewPoint = units.Round(units.DewPoint(t, rh), records.HighDewPoint.Decimals)
	s.cur.HeatIndex = units.Round(units.HeatIndex(t, rh), records.HighHeatIndex.Decimals)
	s.cur.AppTemp = units.Round(units.ApparentTemperature(t, rh, units.MphToMs(s.cur.WindAverage)), records.HighAppTemp.Decimals)
	s.cur.Humidex = units.Round(units.Humidex(t, rh), records.HighHumidex.Decimals)
	s.cur.FeelsLike = units.Round(units.FeelsLike(t, rh, kmh), records.HighFeelsLike.Decimals)

	s.tracker.Observe(records.HighDewPoint, s.cur.DewPoint, ts)
	s.tracker.Observe(records.LowDewPoint, s.cur.DewPoint, ts)
	s.tracker.Observe(records.HighHeatIndex, s.cur.HeatIndex, ts)
	s.tracker.Observe(records.HighAppTemp, s.cur.AppTemp, ts)
	s.tracker.Observe(records.LowAppTemp, s.cur.AppTemp, ts)
	s.tracker.Observe(records.HighHumidex, s.cur.Humidex, ts)
	s.tracker.Observe(records.HighFeelsLike, s.cur.FeelsLike, ts)
	s.tracker.Observe(records.LowFeelsLike, s.cur.FeelsLike, ts)
}

// minuteLocked folds the last minute into the day accumulators, checks the rain sums and writes
// the per-minute row.
func (s *Station) minuteLocked(ctx context.Context, now time.Time) {
	if avg, ok := s.readings.MinuteAverage(temperature, now); ok {
		s.day.addTemperature(avg)
	}
	if s.wind.Len() > 0 {
		s.windLocked(now)
		s.day.addWind(s.cur.WindAverage, float64(s.cur.AvgBearing))
	}
	if sample, ok := s.readings.Latest(solar); ok && now.Sub(sample.Timestamp) <= 2*time.Minute &&
		sample.Value >= s.cfg.SunshineThreshold {
		s.day.addSunshineMinute()
	}
	if s.rain.Initialised() {
		s.cur.RainHour = s.rain.RainSince(ctx, now.Add(-time.Hour))
		s.cur.Rain24h = s.rain.RainSince(ctx, now.Add(-24*time.Hour))
		s.tracker.Observe(records.HighHourlyRain, s.cur.RainHour, now)
		s.tracker.Observe(records.HighRain24h, s.cur.Rain24h, now)
	}

	if s.cur.hasTemp || s.wind.Len() > 0 || s.rain.Initialised() {
		row := s.rowLocked(now)
		s.writer.WriteRow(row)
		s.lastRow = row
	}
	if err := s.day.save(); err != nil {
		s.metrics.PersistFailed("day")
	}
	s.dirty = false
}

func (s *Station) rowLocked(now time.Time) store.Row {
	c := s.cur
	return store.Row{
		Timestamp:   now.Truncate(time.Minute),
		Temperature: c.Temperature,
		Humidity:    c.Humidity,
		DewPoint:    c.DewPoint,
		Pressure:    c.Pressure,
		WindSpeed:   c.Speed,
		WindGust:    c.Gust,
		WindAverage: c.WindAverage,
		Bearing:     c.Bearing,
		AvgBearing:  float64(c.AvgBearing),
		RainCounter: s.rain.Counter(),
		RainToday:   s.rain.RainToday(),
		RainRate:    s.rain.Rate(),
		Solar:       c.Solar,
		UV:          c.UV,
		FeelsLike:   c.FeelsLike,
		AppTemp:     c.AppTemp,
		WindChill:   c.WindChill,
		HeatIndex:   c.HeatIndex,
		Humidex:     c.Humidex,
	}
}

// rolloverSource is the station as the rollover machine sees it. Its methods run inside Tick
// with the processing lock already held.
type rolloverSource struct {
	s *Station
}

func (r rolloverSource) Flush() {
	if !r.s.dirty {
		return
	}
	now := r.s.tickTime
	if now.IsZero() {
		now = r.s.clock.Now()
	}
	r.s.minuteLocked(context.Background(), now)
}

func (r rolloverSource) Current() rollover.Current {
	c := r.s.cur
	return rollover.Current{
		Valid:       c.hasTemp && c.hasHumidity && c.hasPressure,
		Temperature: c.Temperature,
		Humidity:    c.Humidity,
		Pressure:    c.Pressure,
		DewPoint:    c.DewPoint,
		FeelsLike:   c.FeelsLike,
		AppTemp:     c.AppTemp,
		WindChill:   c.WindChill,
		HeatIndex:   c.HeatIndex,
		Humidex:     c.Humidex,
	}
}

func (r rolloverSource) CloseDay() rollover.DaySummary {
	return r.s.day.close(r.s.cfg.RolloverHour == 0)
}

func (r rolloverSource) ResetMidnight() {
	r.s.day.resetMidnight()
}
