// Package sim is a synthetic station used in test mode and for running without hardware.
package sim

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/gr-butler/wxcore/station"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

const (
	// Interval matches a Davis console's wind update rate.
	Interval = time.Millisecond * 2500

	tipSize = 0.2
)

// Simulator produces a plausible day: temperature follows the sun, pressure drifts and
// rain arrives in short showers.
type Simulator struct {
	clock   clockwork.Clock
	rnd     *rand.Rand
	env     physic.Env
	gust    float64
	bearing float64
	counter float64
	shower  int
	et      float64
	lastDay int
}

func New(clock clockwork.Clock, seed int64) *Simulator {
	return &Simulator{
		clock:   clock,
		rnd:     rand.New(rand.NewSource(seed)),
		env:     physic.Env{Pressure: 101325 * physic.Pascal},
		bearing: 225,
	}
}

// Run feeds readings into ing every Interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, ing station.Ingestor) {
	logger.Info("Starting simulated sensors")
	ticker := s.clock.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Step(ing, s.clock.Now())
		}
	}
}

// Step emits one reading of every sensor stamped at now.
func (s *Simulator) Step(ing station.Ingestor, now time.Time) {
	s.sense(now)

	tempC := math.Round(s.env.Temperature.Celsius()*10) / 10
	rh := math.Round(float64(s.env.Humidity) / float64(physic.PercentRH))
	hPa := math.Round((float64(s.env.Pressure)/float64(100*physic.Pascal))*100) / 100
	ing.IngestTemperature(tempC, now)
	ing.IngestHumidity(rh, now)
	ing.IngestPressure(hPa, now)

	speed := math.Max(0, s.gust*0.7)
	ing.IngestWind(round1(s.gust), math.Round(s.bearing), round1(speed), now)
	ing.IngestRain(s.counter, 0, false, now)

	solar := s.solar(now)
	ing.IngestSolar(solar, now)
	ing.IngestUV(round1(solar/100), now)
	ing.IngestET(round1(s.et), now)
}

func (s *Simulator) sense(now time.Time) {
	hour := float64(now.Hour()) + float64(now.Minute())/60
	// coldest around 5am, warmest around 3pm
	tempC := 12 + 6*math.Sin((hour-9)*math.Pi/12) + s.rnd.NormFloat64()*0.1
	s.env.Temperature = physic.ZeroCelsius + physic.Temperature(tempC*float64(physic.Kelvin))

	rh := math.Min(100, math.Max(20, 95-3*(tempC-6)))
	s.env.Humidity = physic.RelativeHumidity(rh * float64(physic.PercentRH))

	s.env.Pressure += physic.Pressure(s.rnd.NormFloat64() * 2 * float64(physic.Pascal))

	s.gust = math.Max(0, math.Min(60, s.gust+s.rnd.NormFloat64()))
	s.bearing = math.Mod(s.bearing+s.rnd.NormFloat64()*5+360, 360)

	if s.shower == 0 && s.rnd.Intn(2000) == 0 {
		s.shower = 20 + s.rnd.Intn(100)
	}
	if s.shower > 0 {
		s.shower--
		if s.rnd.Intn(4) == 0 {
			s.counter += tipSize
		}
	}

	if now.YearDay() != s.lastDay {
		s.lastDay = now.YearDay()
		s.et = 0
	}
	s.et += s.solar(now) * 0.0000025
}

func (s *Simulator) solar(now time.Time) float64 {
	hour := float64(now.Hour()) + float64(now.Minute())/60
	if hour < 6 || hour > 20 {
		return 0
	}
	return math.Round(900 * math.Sin((hour-6)*math.Pi/14))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
