package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeOfDay  = "15:04"
)

// DayRecord summarises one completed meteorological day. It is never modified once appended.
type DayRecord struct {
	Date              time.Time `json:"date"`
	HighTemp          float64   `json:"high_temp"`
	HighTempTime      time.Time `json:"high_temp_time"`
	LowTemp           float64   `json:"low_temp"`
	LowTempTime       time.Time `json:"low_temp_time"`
	AvgTemp           float64   `json:"avg_temp"`
	HighGust          float64   `json:"high_gust"`
	HighGustTime      time.Time `json:"high_gust_time"`
	HighWind          float64   `json:"high_wind"`
	Rain              float64   `json:"rain"`
	HighRainRate      float64   `json:"high_rain_rate"`
	HighRainRateTime  time.Time `json:"high_rain_rate_time"`
	HighHourlyRain    float64   `json:"high_hourly_rain"`
	HighPressure      float64   `json:"high_pressure"`
	LowPressure       float64   `json:"low_pressure"`
	HighHumidity      float64   `json:"high_humidity"`
	LowHumidity       float64   `json:"low_humidity"`
	HighDewPoint      float64   `json:"high_dew_point"`
	LowDewPoint       float64   `json:"low_dew_point"`
	HighFeelsLike     float64   `json:"high_feels_like"`
	LowFeelsLike      float64   `json:"low_feels_like"`
	HighHeatIndex     float64   `json:"high_heat_index"`
	LowWindChill      float64   `json:"low_wind_chill"`
	HighAppTemp       float64   `json:"high_app_temp"`
	LowAppTemp        float64   `json:"low_app_temp"`
	HighHumidex       float64   `json:"high_humidex"`
	HighSolar         float64   `json:"high_solar"`
	HighUV            float64   `json:"high_uv"`
	WindRun           float64   `json:"wind_run"`
	DominantBearing   int       `json:"dominant_bearing"`
	Sunshine          float64   `json:"sunshine"`
	ET                float64   `json:"et"`
	HeatingDegreeDays float64   `json:"heating_degree_days"`
	CoolingDegreeDays float64   `json:"cooling_degree_days"`
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeOfDay)
}

// Fields is the flat dayfile column order.
func (d DayRecord) Fields() []string {
	return []string{
		d.Date.Format(dateLayout),
		ff(d.HighTemp), clock(d.HighTempTime),
		ff(d.LowTemp), clock(d.LowTempTime),
		ff(d.AvgTemp),
		ff(d.HighGust), clock(d.HighGustTime),
		ff(d.HighWind),
		ff(d.Rain),
		ff(d.HighRainRate), clock(d.HighRainRateTime),
		ff(d.HighHourlyRain),
		ff(d.HighPressure), ff(d.LowPressure),
		ff(d.HighHumidity), ff(d.LowHumidity),
		ff(d.HighDewPoint), ff(d.LowDewPoint),
		ff(d.HighFeelsLike), ff(d.LowFeelsLike),
		ff(d.HighHeatIndex), ff(d.LowWindChill),
		ff(d.HighAppTemp), ff(d.LowAppTemp),
		ff(d.HighHumidex),
		ff(d.HighSolar), ff(d.HighUV),
		ff(d.WindRun), strconv.Itoa(d.DominantBearing),
		ff(d.Sunshine), ff(d.ET),
		ff(d.HeatingDegreeDays), ff(d.CoolingDegreeDays),
	}
}

const dayRecordFields = 34

// ParseDayRecord reverses Fields. Times of day are placed on the record's date in loc.
func ParseDayRecord(fields []string, loc *time.Location) (DayRecord, error) {
	if len(fields) != dayRecordFields {
		return DayRecord{}, fmt.Errorf("day record has %d fields, want %d", len(fields), dayRecordFields)
	}
	var d DayRecord
	var err error
	d.Date, err = time.ParseInLocation(dateLayout, fields[0], loc)
	if err != nil {
		return DayRecord{}, fmt.Errorf("bad day record date %q: %w", fields[0], err)
	}

	i := 1
	num := func() float64 {
		v, perr := strconv.ParseFloat(fields[i], 64)
		if perr != nil && err == nil {
			err = fmt.Errorf("field %d %q: %w", i, fields[i], perr)
		}
		i++
		return v
	}
	at := func() time.Time {
		s := fields[i]
		i++
		if s == "" {
			return time.Time{}
		}
		t, perr := time.ParseInLocation(timeOfDay, s, loc)
		if perr != nil {
			if err == nil {
				err = fmt.Errorf("field %d %q: %w", i-1, s, perr)
			}
			return time.Time{}
		}
		return time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	}

	d.HighTemp, d.HighTempTime = num(), at()
	d.LowTemp, d.LowTempTime = num(), at()
	d.AvgTemp = num()
	d.HighGust, d.HighGustTime = num(), at()
	d.HighWind = num()
	d.Rain = num()
	d.HighRainRate, d.HighRainRateTime = num(), at()
	d.HighHourlyRain = num()
	d.HighPressure, d.LowPressure = num(), num()
	d.HighHumidity, d.LowHumidity = num(), num()
	d.HighDewPoint, d.LowDewPoint = num(), num()
	d.HighFeelsLike, d.LowFeelsLike = num(), num()
	d.HighHeatIndex, d.LowWindChill = num(), num()
	d.HighAppTemp, d.LowAppTemp = num(), num()
	d.HighHumidex = num()
	d.HighSolar, d.HighUV = num(), num()
	d.WindRun = num()
	d.DominantBearing = int(num())
	d.Sunshine, d.ET = num(), num()
	d.HeatingDegreeDays, d.CoolingDegreeDays = num(), num()
	if err != nil {
		return DayRecord{}, err
	}
	return d, nil
}

// DayLog is the append-only flat dayfile. All records are also held in memory for week/month sums.
type DayLog struct {
	mu      sync.RWMutex
	path    string
	loc     *time.Location
	records []DayRecord
}

func OpenDayLog(path string, loc *time.Location) (*DayLog, error) {
	l := &DayLog{path: path, loc: loc}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open day log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = dayRecordFields
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read day log: %w", err)
		}
		d, err := ParseDayRecord(fields, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse day log: %w", err)
		}
		l.records = append(l.records, d)
	}
	return l, nil
}

// Append writes one line and refuses a date that is already logged.
func (l *DayLog) Append(d DayRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := d.Date.Format(dateLayout)
	for _, r := range l.records {
		if r.Date.Format(dateLayout) == day {
			return fmt.Errorf("day record for %s already exists", day)
		}
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to append day record: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to append day record: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(d.Fields()); err != nil {
		f.Close()
		return fmt.Errorf("failed to append day record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to append day record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to append day record: %w", err)
	}
	l.records = append(l.records, d)
	return nil
}

// Since returns the records dated on or after from.
func (l *DayLog) Since(from time.Time) []DayRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []DayRecord
	for _, r := range l.records {
		if !r.Date.Before(from) {
			out = append(out, r)
		}
	}
	return out
}

func (l *DayLog) Last() (DayRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.records) == 0 {
		return DayRecord{}, false
	}
	return l.records[len(l.records)-1], true
}

func (l *DayLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
