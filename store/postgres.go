package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	logger "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

const rowColumns = `ts, temperature, humidity, dew_point, pressure, wind_speed, wind_gust, wind_average,
	bearing, avg_bearing, rain_counter, rain_today, rain_rate, solar, uv, feels_like, app_temp,
	wind_chill, heat_index, humidex`

// PostgresStore keeps the time series and the day records in postgres.
type PostgresStore struct {
	db *sql.DB
}

// Connect opens the database, checks it answers and applies the embedded migrations.
func Connect(ctx context.Context, connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrations.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		logger.Infof("Applied migration [%v]", name)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, r Row) error {
	query := `INSERT INTO readings (` + rowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (ts) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		r.Timestamp, r.Temperature, r.Humidity, r.DewPoint, r.Pressure, r.WindSpeed, r.WindGust,
		r.WindAverage, r.Bearing, r.AvgBearing, r.RainCounter, r.RainToday, r.RainRate, r.Solar, r.UV,
		r.FeelsLike, r.AppTemp, r.WindChill, r.HeatIndex, r.Humidex)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (Row, error) {
	var r Row
	err := sc.Scan(&r.Timestamp, &r.Temperature, &r.Humidity, &r.DewPoint, &r.Pressure, &r.WindSpeed,
		&r.WindGust, &r.WindAverage, &r.Bearing, &r.AvgBearing, &r.RainCounter, &r.RainToday, &r.RainRate,
		&r.Solar, &r.UV, &r.FeelsLike, &r.AppTemp, &r.WindChill, &r.HeatIndex, &r.Humidex)
	return r, err
}

func (s *PostgresStore) Since(ctx context.Context, from time.Time) ([]Row, error) {
	query := `SELECT ` + rowColumns + ` FROM readings WHERE ts >= $1 ORDER BY ts`
	rows, err := s.db.QueryContext(ctx, query, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FirstAtOrAfter(ctx context.Context, t time.Time) (Row, error) {
	query := `SELECT ` + rowColumns + ` FROM readings WHERE ts >= $1 ORDER BY ts LIMIT 1`
	r, err := scanRow(s.db.QueryRowContext(ctx, query, t))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNoData
	}
	if err != nil {
		return Row{}, fmt.Errorf("failed to query reading: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) AdjustRainCounter(ctx context.Context, from time.Time, offset float64) error {
	query := `UPDATE readings SET rain_counter = rain_counter + $1 WHERE ts >= $2`
	res, err := s.db.ExecContext(ctx, query, offset, from)
	if err != nil {
		return fmt.Errorf("failed to adjust rain counter: %w", err)
	}
	n, _ := res.RowsAffected()
	logger.Infof("Adjusted rain counter by [%.2f] on [%d] rows", offset, n)
	return nil
}

func (s *PostgresStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge readings: %w", err)
	}
	return res.RowsAffected()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

var dayColumns = []string{
	"day", "high_temp", "high_temp_time", "low_temp", "low_temp_time", "avg_temp", "high_gust",
	"high_gust_time", "high_wind", "rain", "high_rain_rate", "high_rain_rate_time", "high_hourly_rain",
	"high_pressure", "low_pressure", "high_humidity", "low_humidity", "high_dew_point", "low_dew_point",
	"high_feels_like", "low_feels_like", "high_heat_index", "low_wind_chill", "high_app_temp",
	"low_app_temp", "high_humidex", "high_solar", "high_uv", "wind_run", "dominant_bearing", "sunshine",
	"et", "hdd", "cdd",
}

// AppendDayRecord inserts the day, an existing row for the same date is left untouched.
func (s *PostgresStore) AppendDayRecord(ctx context.Context, d DayRecord) error {
	placeholders := make([]string, len(dayColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := `INSERT INTO day_records (` + strings.Join(dayColumns, ", ") + `)
		VALUES (` + strings.Join(placeholders, ", ") + `)
		ON CONFLICT (day) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		d.Date.Format(dateLayout), d.HighTemp, nullTime(d.HighTempTime), d.LowTemp, nullTime(d.LowTempTime),
		d.AvgTemp, d.HighGust, nullTime(d.HighGustTime), d.HighWind, d.Rain, d.HighRainRate,
		nullTime(d.HighRainRateTime), d.HighHourlyRain, d.HighPressure, d.LowPressure, d.HighHumidity,
		d.LowHumidity, d.HighDewPoint, d.LowDewPoint, d.HighFeelsLike, d.LowFeelsLike, d.HighHeatIndex,
		d.LowWindChill, d.HighAppTemp, d.LowAppTemp, d.HighHumidex, d.HighSolar, d.HighUV, d.WindRun,
		d.DominantBearing, d.Sunshine, d.ET, d.HeatingDegreeDays, d.CoolingDegreeDays)
	if err != nil {
		return fmt.Errorf("failed to insert day record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
