package units

import "math"

/*
Derived values

All temperatures are °C and humidity is %RH. Each formula names the wind unit it wants since the
published versions differ: wind chill is defined on km/h, apparent temperature on m/s.

Dew point       Magnus form with the Sonntag (1990) constants.
Wind chill      JAG/TI (Environment Canada / NWS 2001), only below 10°C with wind above 4.8 km/h.
Heat index      NWS Rothfusz regression including the low and high humidity adjustments.
Apparent temp   Steadman (1994) as used by the Australian Bureau of Meteorology, no solar term.
Humidex         Environment Canada, from the dew point.
Feels like      wind chill when cold, heat index when hot, otherwise the air temperature.
*/

const (
	magnusB = 17.62
	magnusC = 243.12

	windChillMaxTemp = 10.0
	windChillMinWind = 4.8
	heatIndexMinTemp = 26.7
)

func DewPoint(tempC, rh float64) float64 {
	if rh <= 0 {
		rh = 1
	}
	gamma := math.Log(rh/100) + (magnusB*tempC)/(magnusC+tempC)
	return magnusC * gamma / (magnusB - gamma)
}

func WindChill(tempC, windKmh float64) float64 {
	if tempC >= windChillMaxTemp || windKmh <= windChillMinWind {
		return tempC
	}
	v := math.Pow(windKmh, 0.16)
	return 13.12 + 0.6215*tempC - 11.37*v + 0.3965*tempC*v
}

func HeatIndex(tempC, rh float64) float64 {
	t := CToF(tempC)
	simple := 0.5 * (t + 61.0 + ((t - 68.0) * 1.2) + (rh * 0.094))
	if (simple+t)/2 < 80 {
		return FToC(simple)
	}

	hi := -42.379 + 2.04901523*t + 10.14333127*rh - .22475541*t*rh -
		.00683783*t*t - .05481717*rh*rh + .00122874*t*t*rh +
		.00085282*t*rh*rh - .00000199*t*t*rh*rh

	switch {
	case rh < 13 && t >= 80 && t <= 112:
		hi -= ((13 - rh) / 4) * math.Sqrt((17-math.Abs(t-95))/17)
	case rh > 85 && t >= 80 && t <= 87:
		hi += ((rh - 85) / 10) * ((87 - t) / 5)
	}
	return FToC(hi)
}

// vapourPressure in hPa.
func vapourPressure(tempC, rh float64) float64 {
	return rh / 100 * 6.105 * math.Exp(17.27*tempC/(237.7+tempC))
}

func ApparentTemperature(tempC, rh, windMs float64) float64 {
	return tempC + 0.33*vapourPressure(tempC, rh) - 0.70*windMs - 4.00
}

func Humidex(tempC, rh float64) float64 {
	dp := DewPoint(tempC, rh)
	e := 6.11 * math.Exp(5417.7530*((1/273.16)-(1/CToK(dp))))
	return tempC + 0.5555*(e-10.0)
}

func FeelsLike(tempC, rh, windKmh float64) float64 {
	switch {
	case tempC < windChillMaxTemp && windKmh > windChillMinWind:
		return WindChill(tempC, windKmh)
	case tempC >= heatIndexMinTemp:
		return HeatIndex(tempC, rh)
	default:
		return tempC
	}
}
