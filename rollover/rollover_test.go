package rollover

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gr-butler/wxcore/persist"
	"github.com/gr-butler/wxcore/rain"
	"github.com/gr-butler/wxcore/records"
	"github.com/gr-butler/wxcore/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	current        Current
	summary        DaySummary
	flushed        int
	closed         int
	midnightResets int
}

func (f *fakeSource) Flush()           { f.flushed++ }
func (f *fakeSource) Current() Current { return f.current }
func (f *fakeSource) CloseDay() DaySummary {
	f.closed++
	return f.summary
}
func (f *fakeSource) ResetMidnight() { f.midnightResets++ }

type capturePublisher struct{ days []store.DayRecord }

func (c *capturePublisher) PublishDayRecord(d store.DayRecord) { c.days = append(c.days, d) }

type fixture struct {
	dir     string
	m       *Machine
	tracker *records.Tracker
	rain    *rain.Machine
	daily   *records.DailyHighLow
	days    *store.DayLog
	source  *fakeSource
	pub     *capturePublisher
}

func testConfig(hour int) Config {
	return Config{
		RolloverHour:    hour,
		YearStartMonth:  time.January,
		WeekStart:       time.Sunday,
		DryDayThreshold: 0.2,
		HeatingBase:     15.5,
		CoolingBase:     18.3,
	}
}

func newFixture(t *testing.T, cfg Config, rainMult float64) *fixture {
	dir := t.TempDir()
	audit, _ := test.NewNullLogger()
	tracker, err := records.NewTracker(dir, audit, nil)
	require.NoError(t, err)
	r, err := rain.NewMachine(rain.Config{Multiplier: rainMult, MaxIncrement: 50},
		persist.NewFile(filepath.Join(dir, "rain.ini")), nil, nil, nil)
	require.NoError(t, err)
	daily, err := records.NewDailyHighLow(persist.NewFile(filepath.Join(dir, "daily.ini")))
	require.NoError(t, err)
	days, err := store.OpenDayLog(filepath.Join(dir, "dayfile.txt"), time.UTC)
	require.NoError(t, err)
	src := &fakeSource{current: Current{Valid: true, Temperature: 13.4, Pressure: 1012, Humidity: 80}}

	m, err := New(cfg, tracker, r, daily, days, src, nil, persist.NewFile(filepath.Join(dir, "rollover.ini")))
	require.NoError(t, err)
	pub := &capturePublisher{}
	m.AddPublisher(pub)
	return &fixture{dir: dir, m: m, tracker: tracker, rain: r, daily: daily, days: days, source: src, pub: pub}
}

func at(y int, mo time.Month, d, h, mi int) time.Time {
	return time.Date(y, mo, d, h, mi, 0, 0, time.UTC)
}

func TestDayRolloverCopiesTodayAndReseeds(t *testing.T) {
	f := newFixture(t, testConfig(9), 1)
	start := at(2024, 6, 12, 9, 0)
	f.tracker.Reset(records.Today, nil, start)
	f.tracker.Observe(records.HighTemp, 25.3, at(2024, 6, 12, 14, 2))
	f.tracker.Observe(records.LowTemp, 11.0, at(2024, 6, 13, 5, 30))

	now := at(2024, 6, 13, 9, 0)
	fired := f.m.Tick(now)
	assert.Equal(t, []Kind{NineAm, Day}, fired)
	assert.Equal(t, 1, f.source.flushed)
	assert.Equal(t, 1, f.source.closed)

	y := f.tracker.Get(records.Yesterday, records.HighTemp)
	assert.Equal(t, 25.3, y.Value)
	assert.True(t, at(2024, 6, 12, 14, 2).Equal(y.Timestamp))

	today := f.tracker.Get(records.Today, records.HighTemp)
	assert.Equal(t, 13.4, today.Value)
	assert.True(t, now.Equal(today.Timestamp))
	assert.Equal(t, 13.4, f.tracker.Get(records.Today, records.LowTemp).Value)
	assert.False(t, f.tracker.Get(records.Today, records.HighGust).Set())

	require.Equal(t, 1, f.days.Len())
	rec, _ := f.days.Last()
	assert.True(t, at(2024, 6, 12, 0, 0).Equal(rec.Date))
	assert.Equal(t, 25.3, rec.HighTemp)
	assert.Equal(t, 11.0, rec.LowTemp)
	require.Len(t, f.pub.days, 1)

	// repeated ticks in the same hour do nothing
	assert.Empty(t, f.m.Tick(now.Add(30*time.Second)))
	assert.Empty(t, f.m.Tick(now.Add(59*time.Minute)))
	assert.Equal(t, 1, f.days.Len())
}

func TestRolloverRainConservation(t *testing.T) {
	f := newFixture(t, testConfig(0), 1.5)
	ctx := context.Background()
	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 10, "LowTemp": 10}, at(2024, 6, 12, 0, 0))
	f.rain.Ingest(ctx, 10.0, 0, false, at(2024, 6, 12, 1, 0))
	f.rain.Ingest(ctx, 13.5, 0, false, at(2024, 6, 12, 20, 0))

	require.NoError(t, f.m.DayRollover(at(2024, 6, 13, 0, 0)))

	rec, ok := f.days.Last()
	require.True(t, ok)
	assert.InDelta(t, (13.5-10.0)*1.5, rec.Rain, 1e-9)
	assert.Equal(t, 13.5, f.rain.State().CounterAtDayStart)
	assert.Equal(t, 0.0, f.rain.RainToday())
	assert.InDelta(t, 5.25, f.m.Carry().MonthRain, 1e-9)
	assert.InDelta(t, 5.25, f.tracker.Get(records.AllTime, records.HighDailyRain).Value, 1e-9)
}

func TestSentinelDayIsNotAppended(t *testing.T) {
	f := newFixture(t, testConfig(0), 1)
	f.tracker.Reset(records.Today, nil, at(2024, 6, 12, 0, 0))

	err := f.m.DayRollover(at(2024, 6, 13, 0, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSentinelExtremes))
	assert.Equal(t, 0, f.days.Len())
	assert.Empty(t, f.pub.days)

	// the rest of the rollover still ran
	assert.Equal(t, 13.4, f.tracker.Get(records.Today, records.HighTemp).Value)
	assert.Equal(t, 13, f.m.Carry().LastDay)
	assert.Equal(t, 1, f.m.Carry().DryDays)
}

func TestStreaks(t *testing.T) {
	f := newFixture(t, testConfig(0), 1)
	ctx := context.Background()
	counter := 0.0
	f.rain.Ingest(ctx, counter, 0, false, at(2024, 3, 1, 0, 0))
	for day, mm := range []float64{0, 0.1, 0, 4, 2} {
		ts := at(2024, 3, 2+day, 0, 0)
		f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 10, "LowTemp": 5}, ts.Add(-24*time.Hour))
		counter += mm
		f.rain.Ingest(ctx, counter, 0, false, ts.Add(-time.Hour))
		require.NoError(t, f.m.DayRollover(ts))
	}
	c := f.m.Carry()
	assert.Equal(t, 0, c.DryDays)
	assert.Equal(t, 2, c.WetDays)
	assert.Equal(t, 3.0, f.tracker.Get(records.Month, records.LongestDryPeriod).Value)
	assert.Equal(t, 2.0, f.tracker.Get(records.AllTime, records.LongestWetPeriod).Value)
}

func TestMonthAndYearRollover(t *testing.T) {
	f := newFixture(t, testConfig(0), 1)
	ctx := context.Background()
	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 3, "LowTemp": -2}, at(2023, 12, 31, 0, 0))
	f.tracker.Observe(records.HighGust, 44, at(2023, 12, 31, 4, 0))
	f.rain.Ingest(ctx, 100, 0, false, at(2023, 12, 31, 1, 0))
	f.rain.Ingest(ctx, 108, 0, false, at(2023, 12, 31, 2, 0))

	require.NoError(t, f.m.DayRollover(at(2024, 1, 1, 0, 0)))

	assert.FileExists(t, filepath.Join(f.dir, "month-2023-12.ini"))
	assert.FileExists(t, filepath.Join(f.dir, "year-2023.ini"))
	assert.False(t, f.tracker.Get(records.Month, records.HighGust).Set())
	assert.False(t, f.tracker.Get(records.Year, records.HighGust).Set())
	assert.Equal(t, 44.0, f.tracker.Get(records.AllTime, records.HighGust).Value)
	assert.Equal(t, 8.0, f.tracker.Get(records.AllTime, records.HighMonthlyRain).Value)
	assert.Equal(t, 8.0, f.tracker.GetMonthly(time.December, records.HighMonthlyRain).Value)

	c := f.m.Carry()
	assert.Equal(t, 0.0, c.MonthRain)
	assert.Equal(t, 0.0, c.YearRain)
	assert.Equal(t, 13.4, f.tracker.Get(records.Month, records.HighTemp).Value)
}

func TestCatchUpAcrossYearStartResetsYear(t *testing.T) {
	f := newFixture(t, testConfig(0), 1)
	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 3, "LowTemp": -2}, at(2023, 12, 30, 0, 0))
	f.tracker.Observe(records.HighGust, 44, at(2023, 12, 30, 4, 0))

	require.NoError(t, f.m.DayRollover(at(2024, 2, 2, 0, 0)))

	assert.FileExists(t, filepath.Join(f.dir, "month-2023-12.ini"))
	assert.FileExists(t, filepath.Join(f.dir, "year-2023.ini"))
	assert.False(t, f.tracker.Get(records.Year, records.HighGust).Set())
	assert.Equal(t, 0.0, f.m.Carry().YearRain)
}

func TestRainYearStartMonth(t *testing.T) {
	cfg := testConfig(0)
	cfg.YearStartMonth = time.July
	f := newFixture(t, cfg, 1)

	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 20, "LowTemp": 10}, at(2024, 2, 29, 0, 0))
	f.tracker.Observe(records.HighGust, 30, at(2024, 2, 29, 4, 0))
	require.NoError(t, f.m.DayRollover(at(2024, 3, 1, 0, 0)))
	assert.Equal(t, 30.0, f.tracker.Get(records.Year, records.HighGust).Value)

	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 20, "LowTemp": 10}, at(2024, 5, 1, 0, 0))
	require.NoError(t, f.m.DayRollover(at(2024, 8, 2, 0, 0)))
	assert.FileExists(t, filepath.Join(f.dir, "year-2023.ini"))
	assert.False(t, f.tracker.Get(records.Year, records.HighGust).Set())
}

func TestDegreeDays(t *testing.T) {
	f := newFixture(t, testConfig(0), 1)
	f.source.summary = DaySummary{AvgTemp: 10.5, WindRun: 120}
	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 14, "LowTemp": 7}, at(2024, 6, 12, 0, 0))
	require.NoError(t, f.m.DayRollover(at(2024, 6, 13, 0, 0)))

	rec, _ := f.days.Last()
	assert.InDelta(t, 5.0, rec.HeatingDegreeDays, 1e-9)
	assert.Equal(t, 0.0, rec.CoolingDegreeDays)
	assert.InDelta(t, 5.0, f.m.Carry().MonthHDD, 1e-9)
	assert.Equal(t, 120.0, f.tracker.Get(records.Year, records.HighWindRun).Value)
	assert.Equal(t, 7.0, f.tracker.Get(records.AllTime, records.LowDailyTempRange).Value)
}

func TestWeekRain(t *testing.T) {
	f := newFixture(t, testConfig(0), 1)
	for i, mm := range []float64{1, 2, 3} {
		// Saturday 8th, Sunday 9th, Monday 10th of June 2024
		require.NoError(t, f.days.Append(store.DayRecord{Date: at(2024, 6, 8+i, 0, 0), HighTemp: 1, LowTemp: 0, Rain: mm}))
	}
	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 10, "LowTemp": 5}, at(2024, 6, 11, 0, 0))
	require.NoError(t, f.m.DayRollover(at(2024, 6, 12, 0, 0)))

	// Sunday + Monday + Tuesday's zero
	assert.Equal(t, 5.0, f.m.Carry().WeekRain)
}

func TestMidnightRollover(t *testing.T) {
	f := newFixture(t, testConfig(9), 1)
	ctx := context.Background()
	f.tracker.Reset(records.Today, nil, at(2024, 6, 12, 9, 0))
	f.rain.Ingest(ctx, 10, 0, false, at(2024, 6, 12, 10, 0))
	f.rain.Ingest(ctx, 12, 0, false, at(2024, 6, 12, 23, 0))
	f.daily.Observe(22, at(2024, 6, 12, 15, 0))

	fired := f.m.Tick(at(2024, 6, 13, 0, 0))
	assert.Equal(t, []Kind{Midnight}, fired)
	assert.Equal(t, 1, f.source.midnightResets)
	assert.Equal(t, 0.0, f.rain.RainSinceMidnight())
	assert.Equal(t, 2.0, f.rain.RainToday())
	assert.Equal(t, 13.4, f.daily.Midnight().High.Value)
	assert.Equal(t, 22.0, f.daily.NineAm().High.Value)

	assert.Empty(t, f.m.Tick(at(2024, 6, 13, 0, 1)))
}

func TestStaleTodayCatchesUp(t *testing.T) {
	f := newFixture(t, testConfig(9), 1)
	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 20, "LowTemp": 10}, at(2024, 6, 10, 11, 0))
	now := at(2024, 6, 12, 15, 0)
	assert.True(t, f.m.Stale(now))

	fired := f.m.Tick(now)
	assert.Equal(t, []Kind{Day}, fired)
	rec, ok := f.days.Last()
	require.True(t, ok)
	assert.True(t, at(2024, 6, 10, 0, 0).Equal(rec.Date))
	assert.False(t, f.m.Stale(now))

	// the regular rollover next morning still fires
	assert.Contains(t, f.m.Tick(at(2024, 6, 13, 9, 0)), Day)
}

func TestCarrySurvivesRestart(t *testing.T) {
	f := newFixture(t, testConfig(0), 1)
	f.tracker.Reset(records.Today, map[string]float64{"HighTemp": 10, "LowTemp": 5}, at(2024, 6, 12, 0, 0))
	require.NoError(t, f.m.DayRollover(at(2024, 6, 13, 0, 0)))

	again, err := New(testConfig(0), f.tracker, f.rain, f.daily, f.days, f.source, nil,
		persist.NewFile(filepath.Join(f.dir, "rollover.ini")))
	require.NoError(t, err)
	assert.Equal(t, f.m.Carry(), again.Carry())
}

func TestMetDayStart(t *testing.T) {
	m := &Machine{cfg: testConfig(9)}
	assert.True(t, at(2024, 6, 12, 9, 0).Equal(m.MetDayStart(at(2024, 6, 13, 8, 59))))
	assert.True(t, at(2024, 6, 13, 9, 0).Equal(m.MetDayStart(at(2024, 6, 13, 9, 0))))
}
