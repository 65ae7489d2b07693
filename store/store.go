package store

import (
	"context"
	"errors"
	"time"
)

var ErrNoData = errors.New("no data")

// Row is one processing minute of current values. Wind is mph, rain mm, pressure hPa, temperatures C.
type Row struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	DewPoint    float64   `json:"dew_point"`
	Pressure    float64   `json:"pressure"`
	WindSpeed   float64   `json:"wind_speed"`
	WindGust    float64   `json:"wind_gust"`
	WindAverage float64   `json:"wind_average"`
	Bearing     float64   `json:"bearing"`
	AvgBearing  float64   `json:"avg_bearing"`
	RainCounter float64   `json:"rain_counter"`
	RainToday   float64   `json:"rain_today"`
	RainRate    float64   `json:"rain_rate"`
	Solar       float64   `json:"solar"`
	UV          float64   `json:"uv"`
	FeelsLike   float64   `json:"feels_like"`
	AppTemp     float64   `json:"app_temp"`
	WindChill   float64   `json:"wind_chill"`
	HeatIndex   float64   `json:"heat_index"`
	Humidex     float64   `json:"humidex"`
}

// TimeSeries is the durable per-minute history.
type TimeSeries interface {
	Append(ctx context.Context, r Row) error
	// Since returns rows with Timestamp >= from, oldest first.
	Since(ctx context.Context, from time.Time) ([]Row, error)
	// FirstAtOrAfter returns the oldest row stamped at or after t, ErrNoData if none.
	FirstAtOrAfter(ctx context.Context, t time.Time) (Row, error)
	// AdjustRainCounter adds offset to the rain counter of every row stamped at or after from.
	AdjustRainCounter(ctx context.Context, from time.Time, offset float64) error
	Purge(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// DayRecordSink receives completed days.
type DayRecordSink interface {
	AppendDayRecord(ctx context.Context, d DayRecord) error
}
