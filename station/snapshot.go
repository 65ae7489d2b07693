package station

import (
	"time"

	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/records"
	"github.com/gr-butler/wxcore/trend"
	"github.com/gr-butler/wxcore/units"
)

// Snapshot is the full current state, served on / and pushed to the notifiers.
type Snapshot struct {
	TimeNow     time.Time `json:"time"`
	Temperature float64   `json:"temperature_C"`
	Humidity    float64   `json:"humidity_RH"`
	Pressure    float64   `json:"pressure_hPa"`
	PressureHg  float64   `json:"pressure_InchHg"`
	DewPoint    float64   `json:"dew_point_C"`
	FeelsLike   float64   `json:"feels_like_C"`
	AppTemp     float64   `json:"apparent_temp_C"`
	WindChill   float64   `json:"wind_chill_C"`
	HeatIndex   float64   `json:"heat_index_C"`
	Humidex     float64   `json:"humidex"`

	WindGust        float64 `json:"wind_gust"`
	WindSpeed       float64 `json:"wind_speed"`
	WindAverage     float64 `json:"wind_speed_avg"`
	PeakGust        float64 `json:"wind_gust_peak"`
	WindDir         float64 `json:"wind_dir"`
	AvgBearing      int     `json:"wind_dir_avg"`
	BearingFrom     int     `json:"wind_dir_from"`
	BearingTo       int     `json:"wind_dir_to"`
	DominantBearing int     `json:"wind_dir_dominant"`
	WindRun         float64 `json:"wind_run_km"`

	RainCounter       float64 `json:"rain_counter"`
	RainToday         float64 `json:"rain_today_mm"`
	RainSinceMidnight float64 `json:"rain_since_midnight_mm"`
	RainRate          float64 `json:"rain_rate"`
	RainHour          float64 `json:"rain_mm_hr"`
	Rain24h           float64 `json:"rain_24h_mm"`
	RainWeek          float64 `json:"rain_week_mm"`
	RainMonth         float64 `json:"rain_month_mm"`
	RainYear          float64 `json:"rain_year_mm"`
	RainPending       bool    `json:"rain_anomaly_pending"`
	DryDays           int     `json:"dry_days"`
	WetDays           int     `json:"wet_days"`

	Solar    float64 `json:"solar_wm2"`
	UV       float64 `json:"uv_index"`
	Sunshine float64 `json:"sunshine_hours"`
	ET       float64 `json:"et_mm"`

	Trends    trend.Trends                     `json:"trends"`
	Today     map[string]records.ExtremeRecord `json:"today"`
	Yesterday map[string]records.ExtremeRecord `json:"yesterday"`
	Midnight  records.HighLow                  `json:"midnight_high_low"`
	NineAm    records.HighLow                  `json:"nineam_high_low"`
	Alarms    []alarm.Alarm                    `json:"alarms"`
}

func (s *Station) snapshotLocked(now time.Time) Snapshot {
	c := s.cur
	carry := s.roll.Carry()
	totals := s.day.totals()
	today := s.rain.RainToday()

	return Snapshot{
		TimeNow:     now,
		Temperature: c.Temperature,
		Humidity:    c.Humidity,
		Pressure:    c.Pressure,
		PressureHg:  units.Round(units.HPaToIn(c.Pressure), 2),
		DewPoint:    c.DewPoint,
		FeelsLike:   c.FeelsLike,
		AppTemp:     c.AppTemp,
		WindChill:   c.WindChill,
		HeatIndex:   c.HeatIndex,
		Humidex:     c.Humidex,

		WindGust:        c.Gust,
		WindSpeed:       c.Speed,
		WindAverage:     c.WindAverage,
		PeakGust:        c.PeakGust,
		WindDir:         c.Bearing,
		AvgBearing:      c.AvgBearing,
		BearingFrom:     c.BearingFrom,
		BearingTo:       c.BearingTo,
		DominantBearing: totals.DominantBearing,
		WindRun:         totals.WindRun,

		RainCounter:       s.rain.Counter(),
		RainToday:         today,
		RainSinceMidnight: s.rain.RainSinceMidnight(),
		RainRate:          s.rain.Rate(),
		RainHour:          c.RainHour,
		Rain24h:           c.Rain24h,
		RainWeek:          carry.WeekRain + today,
		RainMonth:         carry.MonthRain + today,
		RainYear:          carry.YearRain + today,
		RainPending:       s.rain.State().Pending(),
		DryDays:           carry.DryDays,
		WetDays:           carry.WetDays,

		Solar:    c.Solar,
		UV:       c.UV,
		Sunshine: totals.Sunshine,
		ET:       totals.ET,

		Trends:    s.trends.Get(),
		Today:     s.tracker.Records(records.Today),
		Yesterday: s.tracker.Records(records.Yesterday),
		Midnight:  s.daily.Midnight(),
		NineAm:    s.daily.NineAm(),
		Alarms:    s.alarms.Active(),
	}
}

func (s *Station) setSnapshot(snap Snapshot) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.snapshot = snap
}

// Snapshot returns the state as of the last tick. It never waits on the processing lock.
func (s *Station) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot
}
