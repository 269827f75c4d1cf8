package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/llm"
	"github.com/kjstillabower/weather-advisory-service/internal/models"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
	"github.com/kjstillabower/weather-advisory-service/internal/rules"
)

// Sampling parameters per advisory variant.
const (
	advisoryTemperature     = 0.7
	personalizedTemperature = 0.8
	advisoryForecastDays    = 2
)

// AdvisoryOptions carries optional free-text context for the LLM prompt.
type AdvisoryOptions struct {
	Activity    string
	Preferences string
}

// AdvisoryService combines weather data, rule tables and an LLM recommendation.
type AdvisoryService struct {
	weather   WeatherProvider
	llm       llm.Completer
	maxTokens int
}

// NewAdvisoryService creates an AdvisoryService. maxTokens <= 0 uses the LLM default.
func NewAdvisoryService(weather WeatherProvider, completer llm.Completer, maxTokens int) *AdvisoryService {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	return &AdvisoryService{weather: weather, llm: completer, maxTokens: maxTokens}
}

// GetWeatherAdvisory builds an advisory from current conditions and a 2-day
// forecast. Weather failures are wrapped as AdvisoryFailed with the underlying
// kind preserved. An LLM failure degrades to a rules-only advisory with a nil
// recommendation.
func (s *AdvisoryService) GetWeatherAdvisory(ctx context.Context, city string, opts AdvisoryOptions) (models.Advisory, error) {
	logger := observability.LoggerFromContext(ctx)

	current, err := s.weather.GetCurrentWeather(ctx, city)
	if err != nil {
		observability.AdvisoriesTotal.WithLabelValues("standard", "error").Inc()
		return models.Advisory{}, apperror.AdvisoryFailed(err)
	}
	forecast, err := s.weather.GetForecast(ctx, city, advisoryForecastDays)
	if err != nil {
		observability.AdvisoriesTotal.WithLabelValues("standard", "error").Inc()
		return models.Advisory{}, apperror.AdvisoryFailed(err)
	}

	prompt := buildAdvisoryPrompt(current, forecast, opts)
	outcome := "success"
	var recommendation *string
	text, err := s.llm.Complete(ctx, llm.UserPrompt(prompt, advisoryTemperature, s.maxTokens))
	switch {
	case err != nil:
		outcome = "degraded"
		observability.LLMDegradedTotal.Inc()
		logger.Warn("llm unavailable, serving rules-only advisory",
			zap.String("city", city),
			zap.String("kind", apperror.KindOf(err).String()),
			zap.Error(err),
		)
	case text != "":
		recommendation = &text
	}
	observability.AdvisoriesTotal.WithLabelValues("standard", outcome).Inc()

	return models.Advisory{
		Weather: current,
		Advisory: models.AdvisoryDetail{
			Recommendation: recommendation,
			Alerts:         rules.Alerts(current),
			Activities:     rules.Activities(current),
			Clothing:       rules.Clothing(current),
			Confidence:     rules.Confidence(current),
			Conditions:     rules.DeriveConditions(current),
		},
	}, nil
}

// GetPersonalizedRecommendations asks the LLM for advice tailored to profile
// and planned activities. Unlike GetWeatherAdvisory, an LLM failure is returned.
func (s *AdvisoryService) GetPersonalizedRecommendations(ctx context.Context, city string, profile models.UserProfile, planned json.RawMessage) (models.PersonalizedRecommendation, error) {
	current, err := s.weather.GetCurrentWeather(ctx, city)
	if err != nil {
		observability.AdvisoriesTotal.WithLabelValues("personalized", "error").Inc()
		return models.PersonalizedRecommendation{}, err
	}

	prompt, err := buildPersonalizedPrompt(city, current, profile, planned)
	if err != nil {
		observability.AdvisoriesTotal.WithLabelValues("personalized", "error").Inc()
		return models.PersonalizedRecommendation{}, apperror.Validation(err.Error())
	}

	text, err := s.llm.Complete(ctx, llm.UserPrompt(prompt, personalizedTemperature, s.maxTokens))
	if err != nil {
		observability.AdvisoriesTotal.WithLabelValues("personalized", "error").Inc()
		return models.PersonalizedRecommendation{}, err
	}
	observability.AdvisoriesTotal.WithLabelValues("personalized", "success").Inc()

	var advice *string
	if text != "" {
		advice = &text
	}
	if profile == nil {
		profile = models.UserProfile{}
	}
	return models.PersonalizedRecommendation{
		Weather:            current,
		PersonalizedAdvice: advice,
		UserProfile:        profile,
		PlannedActivities:  planned,
	}, nil
}
