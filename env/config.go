package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Station  StationConfig
	Limits   LimitsConfig
	Database DatabaseConfig
	MQTT     MQTTConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	DataDir   string `validate:"required"`
	HTTPAddr  string `validate:"required"`
	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=json text"`
}

// StationConfig holds the meteorological settings. Wind is in mph, rain in mm, pressure in hPa.
type StationConfig struct {
	RolloverHour   int          `validate:"min=0,max=23"`
	YearStartMonth int          `validate:"min=1,max=12"`
	WeekStart      time.Weekday `validate:"min=0,max=6"`

	DryDayThreshold    float64 `validate:"gte=0"`
	RainMultiplier     float64 `validate:"gt=0"`
	MaxRainIncrement   float64 `validate:"gt=0"`
	MaxRainRate        float64 `validate:"gt=0"`
	UseStationRainRate bool
	PowerCycleRebase   bool

	WindSpeedMultiplier float64       `validate:"gt=0"`
	WindGustMultiplier  float64       `validate:"gt=0"`
	UseSpeedForAverage  bool
	AverageWindow       time.Duration `validate:"gt=0"`
	GustWindow          time.Duration `validate:"gt=0"`
	BearingWindow       time.Duration `validate:"gt=0"`

	SunshineThreshold float64 `validate:"gte=0"`
	HeatingBase       float64
	CoolingBase       float64
	ResetETAnnually   bool

	TickInterval   time.Duration `validate:"gt=0"`
	ClockJumpLimit time.Duration `validate:"gt=0"`
	TrendTolerance time.Duration `validate:"gt=0"`
}

// Limit is a spike filter rule. MaxDelta is the largest step allowed between two readings.
type Limit struct {
	MaxDelta float64 `validate:"gt=0"`
	Low      float64
	High     float64 `validate:"gtfield=Low"`
}

type LimitsConfig struct {
	Temperature Limit
	Humidity    Limit
	Pressure    Limit
	Gust        Limit
	Wind        Limit
	Solar       Limit
	UV          Limit
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Prefix   string
	Username string
	Password string
}

func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers        []string
	TopicDayRecord string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Load reads the configuration from the environment, a .env file is used when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Station: StationConfig{
			RolloverHour:        getEnvAsInt("ROLLOVER_HOUR", 0),
			YearStartMonth:      getEnvAsInt("YEAR_START_MONTH", 1),
			WeekStart:           time.Weekday(getEnvAsInt("WEEK_START", int(time.Sunday))),
			DryDayThreshold:     getEnvAsFloat("DRY_DAY_THRESHOLD", 0.2),
			RainMultiplier:      getEnvAsFloat("RAIN_MULTIPLIER", 1.0),
			MaxRainIncrement:    getEnvAsFloat("MAX_RAIN_INCREMENT", 50),
			MaxRainRate:         getEnvAsFloat("MAX_RAIN_RATE", 1000),
			UseStationRainRate:  getEnvAsBool("USE_STATION_RAIN_RATE", true),
			PowerCycleRebase:    getEnvAsBool("POWER_CYCLE_REBASE", false),
			WindSpeedMultiplier: getEnvAsFloat("WIND_SPEED_MULTIPLIER", 1.0),
			WindGustMultiplier:  getEnvAsFloat("WIND_GUST_MULTIPLIER", 1.0),
			UseSpeedForAverage:  getEnvAsBool("USE_SPEED_FOR_AVERAGE", false),
			AverageWindow:       getEnvAsDuration("WIND_AVERAGE_WINDOW", 10*time.Minute),
			GustWindow:          getEnvAsDuration("WIND_GUST_WINDOW", 10*time.Minute),
			BearingWindow:       getEnvAsDuration("WIND_BEARING_WINDOW", 10*time.Minute),
			SunshineThreshold:   getEnvAsFloat("SUNSHINE_THRESHOLD", 120),
			HeatingBase:         getEnvAsFloat("HEATING_BASE", 15.5),
			CoolingBase:         getEnvAsFloat("COOLING_BASE", 18.3),
			ResetETAnnually:     getEnvAsBool("RESET_ET_ANNUALLY", false),
			TickInterval:        getEnvAsDuration("TICK_INTERVAL", 500*time.Millisecond),
			ClockJumpLimit:      getEnvAsDuration("CLOCK_JUMP_LIMIT", 10*time.Minute),
			TrendTolerance:      getEnvAsDuration("TREND_TOLERANCE", 10*time.Minute),
		},
		Limits: LimitsConfig{
			Temperature: getLimit("TEMP", Limit{MaxDelta: 10, Low: -60, High: 60}),
			Humidity:    getLimit("HUMIDITY", Limit{MaxDelta: 30, Low: 0, High: 100}),
			Pressure:    getLimit("PRESSURE", Limit{MaxDelta: 10, Low: 850, High: 1100}),
			Gust:        getLimit("GUST", Limit{MaxDelta: 70, Low: 0, High: 200}),
			Wind:        getLimit("WIND", Limit{MaxDelta: 70, Low: 0, High: 200}),
			Solar:       getLimit("SOLAR", Limit{MaxDelta: 1500, Low: 0, High: 2000}),
			UV:          getLimit("UV", Limit{MaxDelta: 15, Low: 0, High: 20}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "weather"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "weather"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			ClientID: getEnv("MQTT_CLIENT_ID", "wxcore"),
			Prefix:   getEnv("MQTT_PREFIX", "weather"),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "weather"),
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(getEnv("KAFKA_BROKERS", "")),
			TopicDayRecord: getEnv("KAFKA_TOPIC_DAYRECORD", "weather.dayrecords"),
		},
		DataDir:   getEnv("DATA_DIR", "data"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":80"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getLimit(prefix string, def Limit) Limit {
	return Limit{
		MaxDelta: getEnvAsFloat("LIMIT_"+prefix+"_DELTA", def.MaxDelta),
		Low:      getEnvAsFloat("LIMIT_"+prefix+"_LOW", def.Low),
		High:     getEnvAsFloat("LIMIT_"+prefix+"_HIGH", def.High),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
