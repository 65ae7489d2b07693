package station

import (
	"errors"

	"github.com/gr-butler/wxcore/records"
	"github.com/gr-butler/wxcore/rollover"
	"github.com/gr-butler/wxcore/validate"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	AtmPressure     prometheus.Gauge
	RainRatePerHour prometheus.Gauge
	RainDayTotal    prometheus.Gauge
	Humidity        prometheus.Gauge
	Temperature     prometheus.Gauge
	WindSpeed       prometheus.Gauge
	WindGust        prometheus.Gauge
	WindDirection   prometheus.Gauge

	Rejected        *prometheus.CounterVec
	RecordsBroken   *prometheus.CounterVec
	Rollovers       *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AtmPressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atmospheric_pressure",
			Help: "Atmospheric pressure hPa",
		}),
		RainRatePerHour: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rain_hour_rate",
			Help: "The rain rate mm/hr",
		}),
		RainDayTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rain_day",
			Help: "The rain total since the day rollover mm",
		}),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relative_humidity",
			Help: "Relative Humidity",
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "temperature",
			Help: "Temperature C",
		}),
		WindSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "windspeed",
			Help: "Average Wind Speed mph",
		}),
		WindGust: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "windgust",
			Help: "Peak gust mph",
		}),
		WindDirection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "winddirection",
			Help: "Average Wind Direction Deg",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readings_rejected_total",
			Help: "Readings dropped by the spike and limit filters",
		}, []string{"metric", "reason"}),
		RecordsBroken: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_broken_total",
			Help: "Extremes replaced, per scope",
		}, []string{"scope"}),
		Rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollovers_total",
			Help: "Rollovers run, per kind",
		}, []string{"kind"}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "persist_failures_total",
			Help: "Failed state and database writes",
		}, []string{"target"}),
	}

	reg.MustRegister(
		m.AtmPressure,
		m.RainRatePerHour,
		m.RainDayTotal,
		m.Humidity,
		m.Temperature,
		m.WindSpeed,
		m.WindGust,
		m.WindDirection,
		m.Rejected,
		m.RecordsBroken,
		m.Rollovers,
		m.PersistFailures)
	return m
}

func (m *Metrics) rejected(metric validate.Metric, reason error) {
	r := "range"
	if errors.Is(reason, validate.ErrDeltaExceeded) {
		r = "delta"
	}
	m.Rejected.WithLabelValues(string(metric), r).Inc()
}

func (m *Metrics) hooks() records.Hooks {
	return records.Hooks{
		RecordBroken: func(scope records.ScopeName, _ string) {
			m.RecordsBroken.WithLabelValues(string(scope)).Inc()
		},
		PersistFailed: func(scope records.ScopeName) {
			m.PersistFailed(string(scope))
		},
	}
}

func (m *Metrics) rollover(k rollover.Kind) {
	m.Rollovers.WithLabelValues(string(k)).Inc()
}

// PersistFailed counts a failed write, target is a scope name, "rain", "day" or a store target.
func (m *Metrics) PersistFailed(target string) {
	m.PersistFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) update(s Snapshot) {
	m.AtmPressure.Set(s.Pressure)
	m.RainRatePerHour.Set(s.RainRate)
	m.RainDayTotal.Set(s.RainToday)
	m.Humidity.Set(s.Humidity)
	m.Temperature.Set(s.Temperature)
	m.WindSpeed.Set(s.WindAverage)
	m.WindGust.Set(s.PeakGust)
	m.WindDirection.Set(float64(s.AvgBearing))
}
