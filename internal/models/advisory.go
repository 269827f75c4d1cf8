package models

import "encoding/json"

// Alert type tags, in the order rules are evaluated.
const (
	AlertCold       = "cold"
	AlertHeat       = "heat"
	AlertWind       = "wind"
	AlertVisibility = "visibility"
	AlertHumidity   = "humidity"
)

type Alert struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Activities lists suggestions per category. Empty categories are valid.
type Activities struct {
	Indoor  []string `json:"indoor"`
	Outdoor []string `json:"outdoor"`
}

// Conditions carries unit conversions and derived comfort values for a snapshot.
type Conditions struct {
	TemperatureF float64 `json:"temperatureF"`
	HeatIndex    float64 `json:"heatIndex"`
	WindSpeedKmh float64 `json:"windSpeedKmh"`
	WindCompass  string  `json:"windCompass"`
}

// AdvisoryDetail is the derived part of an advisory. Recommendation is nil when
// the LLM returned nothing or could not be reached.
type AdvisoryDetail struct {
	Recommendation *string    `json:"recommendation"`
	Alerts         []Alert    `json:"alerts"`
	Activities     Activities `json:"activities"`
	Clothing       []string   `json:"clothing"`
	Confidence     int        `json:"confidence"`
	Conditions     Conditions `json:"conditions"`
}

type Advisory struct {
	Weather  WeatherSnapshot `json:"weather"`
	Advisory AdvisoryDetail  `json:"advisory"`
}

// UserProfile is a caller-supplied profile. Keys are checked against an
// allow-list; values are passed to the LLM as-is.
type UserProfile map[string]json.RawMessage

type PersonalizedRecommendation struct {
	Weather            WeatherSnapshot `json:"weather"`
	PersonalizedAdvice *string         `json:"personalizedAdvice"`
	UserProfile        UserProfile     `json:"userProfile"`
	PlannedActivities  json.RawMessage `json:"plannedActivities"`
}
