package models

import "time"

// WeatherSnapshot is a normalized point-in-time reading for a city.
// Pressure is nil when the provider did not report it.
type WeatherSnapshot struct {
	City           string    `json:"city"`
	Country        string    `json:"country"`
	Temperature    float64   `json:"temperature"`
	FeelsLike      float64   `json:"feelsLike"`
	Humidity       int       `json:"humidity"`
	Pressure       *float64  `json:"pressure"`
	Description    string    `json:"description"`
	Icon           string    `json:"icon"`
	WindSpeed      float64   `json:"windSpeed"`
	WindDirection  int       `json:"windDirection"`
	Visibility     int       `json:"visibility"`
	Cloudiness     int       `json:"cloudiness"`
	Sunrise        time.Time `json:"sunrise"`
	Sunset         time.Time `json:"sunset"`
	Timestamp      time.Time `json:"timestamp"`
	TimezoneOffset int       `json:"timezoneOffset"` // seconds east of UTC
}

// HasPressure reports whether a non-zero pressure reading is present.
func (w WeatherSnapshot) HasPressure() bool {
	return w.Pressure != nil && *w.Pressure != 0
}

// Clone returns a copy that shares no memory with w.
func (w WeatherSnapshot) Clone() WeatherSnapshot {
	if w.Pressure != nil {
		p := *w.Pressure
		w.Pressure = &p
	}
	return w
}

// Location returns the fixed zone for the city's UTC offset.
func (w WeatherSnapshot) Location() *time.Location {
	return time.FixedZone(w.City, w.TimezoneOffset)
}

// ForecastPoint is one three-hourly forecast sample.
type ForecastPoint struct {
	Datetime      time.Time `json:"datetime"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feelsLike"`
	Humidity      int       `json:"humidity"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	WindSpeed     float64   `json:"windSpeed"`
	Precipitation float64   `json:"precipitation"` // mm over the 3h window
}

// ForecastSet holds forecast points in non-decreasing chronological order.
type ForecastSet struct {
	City           string          `json:"city"`
	Country        string          `json:"country"`
	TimezoneOffset int             `json:"timezoneOffset"`
	Forecasts      []ForecastPoint `json:"forecasts"`
}

// Clone returns a copy that shares no memory with f.
func (f ForecastSet) Clone() ForecastSet {
	if f.Forecasts != nil {
		f.Forecasts = append([]ForecastPoint(nil), f.Forecasts...)
	}
	return f
}
