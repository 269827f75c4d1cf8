// Package rules holds the pure rule tables applied to a weather snapshot:
// alerts, activity and clothing suggestions, a confidence score, and unit
// conversions. Every function is deterministic and free of I/O.
package rules

import (
	"strings"

	"github.com/kjstillabower/weather-advisory-service/internal/models"
)

// Alert thresholds.
const (
	ColdAlertBelowC         = 0.0
	HeatAlertAboveC         = 35.0
	WindAlertAboveMps       = 10.0
	VisibilityAlertBelowM   = 1000
	HumidityAlertAbovePct   = 80
	confidenceBase          = 85
	confidenceMin           = 60
	confidenceMax           = 95
	lowVisibilityConfidence = 5000
	highWindConfidenceMps   = 15.0
)

// rainIndicators match provider descriptions in the locales we request.
var rainIndicators = []string{"rain", "drizzle", "shower", "ploaie"}

// IsRaining reports whether description mentions rain.
func IsRaining(description string) bool {
	d := strings.ToLower(description)
	for _, ind := range rainIndicators {
		if strings.Contains(d, ind) {
			return true
		}
	}
	return false
}

// Alerts returns threshold alerts in check order: cold, heat, wind, visibility, humidity.
func Alerts(w models.WeatherSnapshot) []models.Alert {
	alerts := []models.Alert{}
	if w.Temperature < ColdAlertBelowC {
		alerts = append(alerts, models.Alert{Type: models.AlertCold, Message: "Sub-zero temperatures - risk of frost and ice"})
	}
	if w.Temperature > HeatAlertAboveC {
		alerts = append(alerts, models.Alert{Type: models.AlertHeat, Message: "Extreme temperatures - risk of heat stress"})
	}
	if w.WindSpeed > WindAlertAboveMps {
		alerts = append(alerts, models.Alert{Type: models.AlertWind, Message: "Strong wind - take care when travelling"})
	}
	if w.Visibility < VisibilityAlertBelowM {
		alerts = append(alerts, models.Alert{Type: models.AlertVisibility, Message: "Reduced visibility - drive carefully"})
	}
	if w.Humidity > HumidityAlertAbovePct {
		alerts = append(alerts, models.Alert{Type: models.AlertHumidity, Message: "High humidity - thermal discomfort"})
	}
	return alerts
}

// Activities suggests indoor and outdoor activities. Categories are not exclusive.
func Activities(w models.WeatherSnapshot) models.Activities {
	a := models.Activities{Indoor: []string{}, Outdoor: []string{}}
	if w.Temperature >= 15 && w.Temperature <= 25 && w.WindSpeed < 5 {
		a.Outdoor = append(a.Outdoor, "walk in the park", "cycling", "picnic")
	}
	if w.Temperature < 10 || IsRaining(w.Description) {
		a.Indoor = append(a.Indoor, "museum", "mall", "cafe", "library")
	}
	if w.Temperature > 25 {
		a.Outdoor = append(a.Outdoor, "swimming pool", "terrace", "shaded park")
	}
	return a
}

// Clothing returns a base layer for the temperature band plus rain and wind gear.
func Clothing(w models.WeatherSnapshot) []string {
	var items []string
	switch {
	case w.Temperature < 5:
		items = append(items, "heavy coat", "hat", "gloves", "warm footwear")
	case w.Temperature < 15:
		items = append(items, "jacket", "sweater", "long trousers")
	case w.Temperature < 25:
		items = append(items, "long-sleeve shirt", "light jacket")
	default:
		items = append(items, "t-shirt", "shorts", "sun hat")
	}
	if IsRaining(w.Description) {
		items = append(items, "umbrella", "raincoat")
	}
	if w.WindSpeed > 5 {
		items = append(items, "windproof jacket")
	}
	return items
}

// Confidence scores data quality from 85, clamped to [60, 95].
func Confidence(w models.WeatherSnapshot) int {
	score := confidenceBase
	if w.Visibility < lowVisibilityConfidence {
		score -= 10
	}
	if w.WindSpeed > highWindConfidenceMps {
		score -= 5
	}
	if !w.HasPressure() {
		score -= 5
	}
	return ClampConfidence(score)
}

// ClampConfidence bounds a raw score to [60, 95].
func ClampConfidence(score int) int {
	if score < confidenceMin {
		return confidenceMin
	}
	if score > confidenceMax {
		return confidenceMax
	}
	return score
}

// DeriveConditions computes unit conversions and the heat index for a snapshot.
func DeriveConditions(w models.WeatherSnapshot) models.Conditions {
	return models.Conditions{
		TemperatureF: round1(CelsiusToFahrenheit(w.Temperature)),
		HeatIndex:    round1(HeatIndex(w.Temperature, float64(w.Humidity))),
		WindSpeedKmh: round1(MpsToKmh(w.WindSpeed)),
		WindCompass:  WindDirection(w.WindDirection),
	}
}
