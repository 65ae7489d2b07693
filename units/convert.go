package units

import (
	"math"

	"periph.io/x/conn/v3/physic"
)

const (
	HPaToInHg = 0.02953
	kmhPerMs  = 3.6
)

func CToF(c float64) float64 {
	//(0°C × 9/5) + 32 = 32°F
	return (c * 9 / 5) + 32
}

func FToC(f float64) float64 {
	return (f - 32) * 5 / 9
}

func CToK(c float64) float64 {
	t := physic.ZeroCelsius + physic.Temperature(c*float64(physic.Kelvin))
	return float64(t) / float64(physic.Kelvin)
}

func MphToMs(mph float64) float64 {
	return mph * float64(physic.MilePerHour) / float64(physic.MetrePerSecond)
}

func MsToMph(ms float64) float64 {
	return ms * float64(physic.MetrePerSecond) / float64(physic.MilePerHour)
}

func MphToKmh(mph float64) float64 {
	return MphToMs(mph) * kmhPerMs
}

func MmToIn(mm float64) float64 {
	return mm * float64(physic.MilliMetre) / float64(physic.Inch)
}

func HPaToIn(hPa float64) float64 {
	return hPa * HPaToInHg
}

// Round to dp decimal places.
func Round(v float64, dp int) float64 {
	p := math.Pow(10, float64(dp))
	return math.Round(v*p) / p
}
