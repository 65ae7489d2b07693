package records

import (
	"math"

	"github.com/gr-butler/wxcore/env"
)

type Direction int

const (
	Higher Direction = iota
	Lower
)

func (d Direction) String() string {
	if d == Lower {
		return "lower"
	}
	return "higher"
}

// Metric describes one tracked extreme.
type Metric struct {
	Name        string
	Description string
	Direction   Direction
	// Derived metrics come from a formula and only register a record when the change shows at Decimals.
	Derived  bool
	Decimals int
	// WholeDay metrics belong to a day rather than to the reading that set them.
	WholeDay bool
	// DayEnd metrics are only known when the day closes and are never tracked in Today.
	DayEnd bool
}

// Epsilon is the smallest change that counts as a new extreme.
func (m Metric) Epsilon() float64 {
	if m.Derived {
		return math.Pow(10, -float64(m.Decimals))
	}
	return env.MeasuredEpsilon
}

// Sentinel is the "no record yet" value, beaten by any real reading.
func (m Metric) Sentinel() float64 {
	if m.Direction == Lower {
		return env.LowSentinel
	}
	return env.HighSentinel
}

// float64 subtraction of two values one step apart at Decimals can land just under the step
const slack = 1e-9

// Beats reports whether value is a new extreme against old.
func (m Metric) Beats(value, old float64) bool {
	if m.Direction == Lower {
		return old-value >= m.Epsilon()-slack
	}
	return value-old >= m.Epsilon()-slack
}

func IsSentinel(v float64) bool {
	return v == env.HighSentinel || v == env.LowSentinel
}

var (
	HighTemp           = Metric{Name: "HighTemp", Description: "High temperature", Direction: Higher, Decimals: 1}
	LowTemp            = Metric{Name: "LowTemp", Description: "Low temperature", Direction: Lower, Decimals: 1}
	HighGust           = Metric{Name: "HighGust", Description: "High gust", Direction: Higher, Decimals: 1}
	HighWind           = Metric{Name: "HighWind", Description: "High average wind speed", Direction: Higher, Decimals: 1}
	HighRainRate       = Metric{Name: "HighRainRate", Description: "High rain rate", Direction: Higher, Decimals: 1}
	HighHourlyRain     = Metric{Name: "HighHourlyRain", Description: "High hourly rain", Direction: Higher, Decimals: 1}
	HighRain24h        = Metric{Name: "HighRain24h", Description: "High 24 hour rain", Direction: Higher, Decimals: 1}
	HighDailyRain      = Metric{Name: "HighDailyRain", Description: "High daily rain", Direction: Higher, Decimals: 1, WholeDay: true, DayEnd: true}
	HighMonthlyRain    = Metric{Name: "HighMonthlyRain", Description: "High monthly rain", Direction: Higher, Decimals: 1, WholeDay: true, DayEnd: true}
	HighPressure       = Metric{Name: "HighPressure", Description: "High pressure", Direction: Higher, Decimals: 1}
	LowPressure        = Metric{Name: "LowPressure", Description: "Low pressure", Direction: Lower, Decimals: 1}
	HighHumidity       = Metric{Name: "HighHumidity", Description: "High humidity", Direction: Higher}
	LowHumidity        = Metric{Name: "LowHumidity", Description: "Low humidity", Direction: Lower}
	HighDewPoint       = Metric{Name: "HighDewPoint", Description: "High dew point", Direction: Higher, Derived: true, Decimals: 1}
	LowDewPoint        = Metric{Name: "LowDewPoint", Description: "Low dew point", Direction: Lower, Derived: true, Decimals: 1}
	HighHeatIndex      = Metric{Name: "HighHeatIndex", Description: "High heat index", Direction: Higher, Derived: true, Decimals: 1}
	LowWindChill       = Metric{Name: "LowWindChill", Description: "Low wind chill", Direction: Lower, Derived: true, Decimals: 1}
	HighAppTemp        = Metric{Name: "HighAppTemp", Description: "High apparent temperature", Direction: Higher, Derived: true, Decimals: 1}
	LowAppTemp         = Metric{Name: "LowAppTemp", Description: "Low apparent temperature", Direction: Lower, Derived: true, Decimals: 1}
	HighFeelsLike      = Metric{Name: "HighFeelsLike", Description: "High feels like", Direction: Higher, Derived: true, Decimals: 1}
	LowFeelsLike       = Metric{Name: "LowFeelsLike", Description: "Low feels like", Direction: Lower, Derived: true, Decimals: 1}
	HighHumidex        = Metric{Name: "HighHumidex", Description: "High humidex", Direction: Higher, Derived: true, Decimals: 1}
	HighSolar          = Metric{Name: "HighSolar", Description: "High solar radiation", Direction: Higher}
	HighUV             = Metric{Name: "HighUV", Description: "High UV index", Direction: Higher, Decimals: 1}
	HighMinTemp        = Metric{Name: "HighMinTemp", Description: "Highest minimum temperature", Direction: Higher, Decimals: 1, WholeDay: true, DayEnd: true}
	LowMaxTemp         = Metric{Name: "LowMaxTemp", Description: "Lowest maximum temperature", Direction: Lower, Decimals: 1, WholeDay: true, DayEnd: true}
	HighDailyTempRange = Metric{Name: "HighDailyTempRange", Description: "Highest daily temperature range", Direction: Higher, Decimals: 1, WholeDay: true, DayEnd: true}
	LowDailyTempRange  = Metric{Name: "LowDailyTempRange", Description: "Lowest daily temperature range", Direction: Lower, Decimals: 1, WholeDay: true, DayEnd: true}
	LongestDryPeriod   = Metric{Name: "LongestDryPeriod", Description: "Longest dry period", Direction: Higher, WholeDay: true, DayEnd: true}
	LongestWetPeriod   = Metric{Name: "LongestWetPeriod", Description: "Longest wet period", Direction: Higher, WholeDay: true, DayEnd: true}
	HighWindRun        = Metric{Name: "HighWindRun", Description: "Highest daily wind run", Direction: Higher, Decimals: 1, WholeDay: true, DayEnd: true}
)

var catalogue = []Metric{
	HighTemp, LowTemp, HighGust, HighWind, HighRainRate, HighHourlyRain, HighRain24h, HighDailyRain,
	HighMonthlyRain, HighPressure, LowPressure, HighHumidity, LowHumidity, HighDewPoint, LowDewPoint,
	HighHeatIndex, LowWindChill, HighAppTemp, LowAppTemp, HighFeelsLike, LowFeelsLike, HighHumidex,
	HighSolar, HighUV, HighMinTemp, LowMaxTemp, HighDailyTempRange, LowDailyTempRange,
	LongestDryPeriod, LongestWetPeriod, HighWindRun,
}

var byName = func() map[string]Metric {
	m := make(map[string]Metric, len(catalogue))
	for _, x := range catalogue {
		m[x.Name] = x
	}
	return m
}()

func All() []Metric {
	out := make([]Metric, len(catalogue))
	copy(out, catalogue)
	return out
}

func Lookup(name string) (Metric, bool) {
	m, ok := byName[name]
	return m, ok
}
