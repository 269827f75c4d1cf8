package rules

import "math"

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

func MpsToKmh(mps float64) float64 {
	return mps * 3.6
}

// WindDirection maps degrees to a 16-point compass label. Negative and
// >360 inputs wrap.
func WindDirection(degrees int) string {
	idx := int(math.Round(float64(degrees)/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}

// HeatIndex applies the Rothfusz regression and returns Celsius. Below 80°F
// the regression is not valid and the air temperature is returned unchanged.
func HeatIndex(tempC, humidity float64) float64 {
	t := CelsiusToFahrenheit(tempC)
	if t < 80 {
		return tempC
	}
	rh := humidity
	hi := -42.379 + 2.04901523*t + 10.14333127*rh -
		0.22475541*t*rh - 6.83783e-3*t*t -
		5.481717e-2*rh*rh + 1.22874e-3*t*t*rh +
		8.5282e-4*t*rh*rh - 1.99e-6*t*t*rh*rh
	return (hi - 32) * 5 / 9
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
