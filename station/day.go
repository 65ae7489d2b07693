package station

import (
	"sync"

	"github.com/gr-butler/wxcore/persist"
	"github.com/gr-butler/wxcore/rollover"
	"github.com/gr-butler/wxcore/units"
	"github.com/gr-butler/wxcore/wind"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const daySection = "day"

// day holds the accumulators that only make sense over a whole day. They are saved every
// minute so a restart part way through the day carries on from where it was.
type day struct {
	mu           sync.Mutex
	file         *persist.File
	tempSum      float64
	tempMinutes  int
	windRun      float64 // km
	sunshine     float64 // hours since midnight
	lastSunshine float64 // the previous midnight to midnight total
	et           float64
	dominant     wind.Dominant
}

func loadDay(file *persist.File) (*day, error) {
	d := &day{file: file}
	if file == nil {
		return d, nil
	}
	doc, err := file.Load()
	if err != nil {
		return nil, err
	}
	sec := doc.Section(daySection)
	d.tempSum = sec.Key("temp_sum").MustFloat64(0)
	d.tempMinutes = sec.Key("temp_minutes").MustInt(0)
	d.windRun = sec.Key("wind_run").MustFloat64(0)
	d.sunshine = sec.Key("sunshine").MustFloat64(0)
	d.lastSunshine = sec.Key("last_sunshine").MustFloat64(0)
	d.et = sec.Key("et").MustFloat64(0)
	d.dominant.Restore(sec.Key("dominant_x").MustFloat64(0), sec.Key("dominant_y").MustFloat64(0),
		sec.Key("dominant_minutes").MustInt(0))
	return d, nil
}

func (d *day) saveLocked() error {
	if d.file == nil {
		return nil
	}
	doc := ini.Empty()
	sec := doc.Section(daySection)
	x, y, minutes := d.dominant.State()
	for k, v := range map[string]float64{
		"temp_sum":         d.tempSum,
		"temp_minutes":     float64(d.tempMinutes),
		"wind_run":         d.windRun,
		"sunshine":         d.sunshine,
		"last_sunshine":    d.lastSunshine,
		"et":               d.et,
		"dominant_x":       x,
		"dominant_y":       y,
		"dominant_minutes": float64(minutes),
	} {
		sec.Key(k).SetValue(persist.FormatFloat(v))
	}
	if err := d.file.Save(doc); err != nil {
		logger.Errorf("Failed to save day accumulators [%v]", err)
		return err
	}
	return nil
}

func (d *day) save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveLocked()
}

func (d *day) addTemperature(avg float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tempSum += avg
	d.tempMinutes++
}

// addWind folds in one minute at the average speed in mph.
func (d *day) addWind(avgMph, bearing float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windRun += units.MphToKmh(avgMph) / 60
	if avgMph > 0 {
		d.dominant.AddMinute(bearing, avgMph)
	}
}

func (d *day) addSunshineMinute() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sunshine += 1.0 / 60
}

// setET takes the station's running total for the day.
func (d *day) setET(mm float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.et = mm
}

func (d *day) avgTemp() float64 {
	if d.tempMinutes == 0 {
		return 0
	}
	return d.tempSum / float64(d.tempMinutes)
}

func (d *day) totals() rollover.DaySummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return rollover.DaySummary{
		AvgTemp:         d.avgTemp(),
		WindRun:         d.windRun,
		DominantBearing: d.dominant.Bearing(),
		Sunshine:        d.sunshine,
		ET:              d.et,
	}
}

// close returns the finished day and starts a new one. Sunshine runs midnight to midnight so
// with a midnight rollover the total just closed by resetMidnight is the one reported.
func (d *day) close(midnightRollover bool) rollover.DaySummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := rollover.DaySummary{
		AvgTemp:         d.avgTemp(),
		WindRun:         d.windRun,
		DominantBearing: d.dominant.Bearing(),
		Sunshine:        d.sunshine,
		ET:              d.et,
	}
	if midnightRollover {
		t.Sunshine = d.lastSunshine
	}
	d.tempSum, d.tempMinutes, d.windRun, d.et = 0, 0, 0, 0
	d.dominant.Reset()
	_ = d.saveLocked()
	return t
}

func (d *day) resetMidnight() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSunshine = d.sunshine
	d.sunshine = 0
	_ = d.saveLocked()
}
