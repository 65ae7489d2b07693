package records

import (
	"sync"
	"time"

	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/persist"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

type HighLow struct {
	High ExtremeRecord `json:"high"`
	Low  ExtremeRecord `json:"low"`
}

func newHighLow() HighLow {
	return HighLow{
		High: ExtremeRecord{Value: env.HighSentinel, Description: "High temperature"},
		Low:  ExtremeRecord{Value: env.LowSentinel, Description: "Low temperature"},
	}
}

func seededHighLow(temp float64, ts time.Time) HighLow {
	hl := newHighLow()
	hl.High.Value, hl.High.Timestamp = temp, ts
	hl.Low.Value, hl.Low.Timestamp = temp, ts
	return hl
}

func (hl *HighLow) observe(temp float64, ts time.Time) bool {
	changed := false
	if HighTemp.Beats(temp, hl.High.Value) {
		hl.High.Value, hl.High.Timestamp = temp, ts
		changed = true
	}
	if LowTemp.Beats(temp, hl.Low.Value) {
		hl.Low.Value, hl.Low.Timestamp = temp, ts
		changed = true
	}
	return changed
}

// DailyHighLow keeps the temperature pairs that run on fixed clock boundaries, midnight to
// midnight and 9am to 9am, regardless of the configured rollover hour. The rollover hour day
// is the Today scope.
type DailyHighLow struct {
	mu       sync.Mutex
	midnight HighLow
	nineAm   HighLow
	file     *persist.File
}

func NewDailyHighLow(file *persist.File) (*DailyHighLow, error) {
	d := &DailyHighLow{midnight: newHighLow(), nineAm: newHighLow(), file: file}
	if file == nil {
		return d, nil
	}
	doc, err := file.Load()
	if err != nil {
		return nil, err
	}
	load := func(name string, hl *HighLow) {
		sec := doc.Section(name)
		hl.High.Value = sec.Key("high").MustFloat64(env.HighSentinel)
		hl.High.Timestamp = persist.ParseTime(sec.Key("high_time").String())
		hl.Low.Value = sec.Key("low").MustFloat64(env.LowSentinel)
		hl.Low.Timestamp = persist.ParseTime(sec.Key("low_time").String())
	}
	load("midnight", &d.midnight)
	load("nineam", &d.nineAm)
	return d, nil
}

func (d *DailyHighLow) saveLocked() {
	if d.file == nil {
		return
	}
	doc := ini.Empty()
	store := func(name string, hl HighLow) {
		sec := doc.Section(name)
		sec.Key("high").SetValue(persist.FormatFloat(hl.High.Value))
		sec.Key("high_time").SetValue(persist.FormatTime(hl.High.Timestamp))
		sec.Key("low").SetValue(persist.FormatFloat(hl.Low.Value))
		sec.Key("low_time").SetValue(persist.FormatTime(hl.Low.Timestamp))
	}
	store("midnight", d.midnight)
	store("nineam", d.nineAm)
	if err := d.file.Save(doc); err != nil {
		logger.Errorf("Failed to save daily high/low [%v]", err)
	}
}

func (d *DailyHighLow) Observe(temp float64, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := d.midnight.observe(temp, ts)
	b := d.nineAm.observe(temp, ts)
	if a || b {
		d.saveLocked()
	}
}

// ResetMidnight starts a new midnight day seeded with the current temperature and returns the closed pair.
func (d *DailyHighLow) ResetMidnight(temp float64, ts time.Time) HighLow {
	d.mu.Lock()
	defer d.mu.Unlock()
	closed := d.midnight
	d.midnight = seededHighLow(temp, ts)
	d.saveLocked()
	return closed
}

func (d *DailyHighLow) ResetNineAm(temp float64, ts time.Time) HighLow {
	d.mu.Lock()
	defer d.mu.Unlock()
	closed := d.nineAm
	d.nineAm = seededHighLow(temp, ts)
	d.saveLocked()
	return closed
}

func (d *DailyHighLow) Midnight() HighLow {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.midnight
}

func (d *DailyHighLow) NineAm() HighLow {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nineAm
}
