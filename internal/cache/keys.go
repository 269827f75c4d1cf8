package cache

import (
	"strconv"
	"strings"
)

// Query kinds used to namespace cache keys.
const (
	KindWeather  = "weather"
	KindForecast = "forecast"
)

// NormalizeCity trims and lower-cases a city name for use in keys.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// WeatherKey returns the key for current conditions, e.g. "weather:paris".
func WeatherKey(city string) string {
	return KindWeather + ":" + NormalizeCity(city)
}

// ForecastKey returns the key for a forecast, e.g. "forecast:paris:5".
func ForecastKey(city string, days int) string {
	return KindForecast + ":" + NormalizeCity(city) + ":" + strconv.Itoa(days)
}
