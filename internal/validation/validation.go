// Package validation checks caller input before any upstream call is made.
// Every error is an apperror of kind Validation.
package validation

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/models"
)

// City length bounds in runes.
const (
	CityMinLength = 2
	CityMaxLength = 50
)

// DefaultForecastDays is used when the days query parameter is absent.
const DefaultForecastDays = 5

var (
	ErrCityRequired       = apperror.Validation("City parameter is required")
	ErrCityLength         = apperror.Validation("City name must be between 2 and 50 characters")
	ErrCityInvalidChars   = apperror.Validation("City name contains invalid characters")
	ErrProfileRequired    = apperror.Validation("Valid user profile is required")
	ErrDaysNotInteger     = apperror.Validation("days must be an integer")
	ErrInvalidRequestBody = apperror.Validation("Request body must be valid JSON")
)

// allowedProfileFields are the only keys accepted in a user profile.
var allowedProfileFields = map[string]struct{}{
	"age":              {},
	"preferences":      {},
	"healthConditions": {},
	"activities":       {},
}

// ValidateCity enforces length (2..50 runes) and the character set: ASCII
// letters and digits, space, hyphen and the Romanian letters ă â î ș ț in both
// cases. The input is not trimmed; surrounding spaces count toward the length.
func ValidateCity(city string) (string, error) {
	if city == "" {
		return "", ErrCityRequired
	}
	n := utf8.RuneCountInString(city)
	if n < CityMinLength || n > CityMaxLength {
		return "", ErrCityLength
	}
	for _, r := range city {
		if !isAllowedCityRune(r) {
			return "", ErrCityInvalidChars
		}
	}
	return city, nil
}

func isAllowedCityRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ' ', '-', 'ă', 'â', 'î', 'ș', 'ț', 'Ă', 'Â', 'Î', 'Ș', 'Ț':
		return true
	}
	return false
}

// ValidateProfile decodes raw as a JSON object and rejects keys outside the
// allow-list. Values are not inspected.
func ValidateProfile(raw json.RawMessage) (models.UserProfile, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || !strings.HasPrefix(trimmed, "{") {
		return nil, ErrProfileRequired
	}
	var profile models.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, ErrProfileRequired
	}

	var invalid []string
	for k := range profile {
		if _, ok := allowedProfileFields[k]; !ok {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, apperror.Validation("Invalid profile fields: " + strings.Join(invalid, ", "))
	}
	return profile, nil
}

// ParseDays parses the days query parameter. Absent means DefaultForecastDays;
// range clamping is left to the weather service.
func ParseDays(raw string) (int, error) {
	if raw == "" {
		return DefaultForecastDays, nil
	}
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, ErrDaysNotInteger
	}
	return days, nil
}
