package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kjstillabower/weather-advisory-service/internal/models"
)

// promptForecastPoints is how many three-hourly points (24h) go into the advisory prompt.
const promptForecastPoints = 8

const (
	clockLayout    = "15:04"
	forecastLayout = "Mon 02 Jan 15:04"
)

// buildAdvisoryPrompt renders the advisory prompt. Times are shown in the
// city's local time using the provider's UTC offset.
func buildAdvisoryPrompt(w models.WeatherSnapshot, f models.ForecastSet, opts AdvisoryOptions) string {
	loc := w.Location()
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following weather data for %s", w.City)
	if w.Country != "" {
		fmt.Fprintf(&b, ", %s", w.Country)
	}
	b.WriteString(" and give a detailed, practical recommendation.\n\n")

	b.WriteString("**Current weather:**\n")
	fmt.Fprintf(&b, "- Temperature: %s°C (feels like %s°C)\n", formatNumber(w.Temperature), formatNumber(w.FeelsLike))
	fmt.Fprintf(&b, "- Description: %s\n", w.Description)
	fmt.Fprintf(&b, "- Humidity: %d%%\n", w.Humidity)
	fmt.Fprintf(&b, "- Wind: %s m/s\n", formatNumber(w.WindSpeed))
	fmt.Fprintf(&b, "- Visibility: %dm\n", w.Visibility)
	fmt.Fprintf(&b, "- Sunrise: %s\n", w.Sunrise.In(loc).Format(clockLayout))
	fmt.Fprintf(&b, "- Sunset: %s\n", w.Sunset.In(loc).Format(clockLayout))

	b.WriteString("\n**Forecast:**\n")
	points := f.Forecasts
	if len(points) > promptForecastPoints {
		points = points[:promptForecastPoints]
	}
	for _, p := range points {
		fmt.Fprintf(&b, "- %s: %s°C, %s\n", p.Datetime.In(loc).Format(forecastLayout), formatNumber(p.Temperature), p.Description)
	}

	if opts.Activity != "" || opts.Preferences != "" {
		b.WriteString("\n**Context:**\n")
		if opts.Activity != "" {
			fmt.Fprintf(&b, "Planned activity: %s\n", opts.Activity)
		}
		if opts.Preferences != "" {
			fmt.Fprintf(&b, "Preferences: %s\n", opts.Preferences)
		}
	}

	b.WriteString(`
Provide a practical, useful recommendation that covers:
1. An assessment of current conditions
2. Clothing advice
3. Recommended activities and ones to avoid
4. Special precautions
5. The outlook for the next few hours

Answer concisely and practically.`)
	return b.String()
}

// buildPersonalizedPrompt renders the personalized prompt with the profile and
// planned activities as indented JSON.
func buildPersonalizedPrompt(city string, w models.WeatherSnapshot, profile models.UserProfile, planned json.RawMessage) (string, error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode user profile: %w", err)
	}
	plannedJSON, err := indentRaw(planned)
	if err != nil {
		return "", fmt.Errorf("encode planned activities: %w", err)
	}

	var b strings.Builder
	b.WriteString("Create personalized recommendations for a user with the following profile:\n\n")
	b.WriteString("**User profile:**\n")
	b.Write(profileJSON)
	b.WriteString("\n\n**Planned activities:**\n")
	b.WriteString(plannedJSON)
	fmt.Fprintf(&b, "\n\n**Weather in %s:**\n", city)
	fmt.Fprintf(&b, "Temperature: %s°C\n", formatNumber(w.Temperature))
	fmt.Fprintf(&b, "Description: %s\n", w.Description)
	fmt.Fprintf(&b, "Humidity: %d%%\n", w.Humidity)
	fmt.Fprintf(&b, "Wind: %s m/s\n", formatNumber(w.WindSpeed))
	b.WriteString("\nGive specific, personalized recommendations.")
	return b.String(), nil
}

func indentRaw(raw json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "null", nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatNumber prints floats without trailing zeros (12.5, 3, -0.4).
func formatNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
