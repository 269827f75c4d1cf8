package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/llm"
	"github.com/kjstillabower/weather-advisory-service/internal/models"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
)

type mockProvider struct {
	current     models.WeatherSnapshot
	forecast    models.ForecastSet
	currentErr  error
	forecastErr error
	forecastReq []int
}

func (m *mockProvider) GetCurrentWeather(ctx context.Context, city string) (models.WeatherSnapshot, error) {
	return m.current, m.currentErr
}

func (m *mockProvider) GetForecast(ctx context.Context, city string, days int) (models.ForecastSet, error) {
	m.forecastReq = append(m.forecastReq, days)
	return m.forecast, m.forecastErr
}

type mockCompleter struct {
	text     string
	err      error
	requests []llm.CompletionRequest
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	m.requests = append(m.requests, req)
	return m.text, m.err
}

func fp(v float64) *float64 { return &v }

func sampleSnapshot() models.WeatherSnapshot {
	return models.WeatherSnapshot{
		City:           "Bucharest",
		Country:        "RO",
		Temperature:    -1,
		FeelsLike:      -4,
		Humidity:       85,
		Pressure:       fp(1012),
		Description:    "light snow",
		WindSpeed:      12,
		WindDirection:  90,
		Visibility:     500,
		Sunrise:        time.Date(2026, 1, 10, 5, 30, 0, 0, time.UTC),
		Sunset:         time.Date(2026, 1, 10, 14, 45, 0, 0, time.UTC),
		TimezoneOffset: 7200,
	}
}

func sampleForecast(n int) models.ForecastSet {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	points := make([]models.ForecastPoint, n)
	for i := range points {
		points[i] = models.ForecastPoint{
			Datetime:    base.Add(time.Duration(i) * 3 * time.Hour),
			Temperature: float64(i),
			Description: fmt.Sprintf("point-%d", i),
		}
	}
	return models.ForecastSet{City: "Bucharest", Country: "RO", TimezoneOffset: 7200, Forecasts: points}
}

func TestAdvisoryService_GetWeatherAdvisory(t *testing.T) {
	p := &mockProvider{current: sampleSnapshot(), forecast: sampleForecast(16)}
	c := &mockCompleter{text: "Dress warmly."}
	svc := NewAdvisoryService(p, c, 0)

	got, err := svc.GetWeatherAdvisory(context.Background(), "Bucharest", AdvisoryOptions{Activity: "running", Preferences: "no rain"})
	if err != nil {
		t.Fatalf("GetWeatherAdvisory() error = %v", err)
	}
	if len(p.forecastReq) != 1 || p.forecastReq[0] != 2 {
		t.Errorf("forecast days requested = %v, want [2]", p.forecastReq)
	}
	if got.Advisory.Recommendation == nil || *got.Advisory.Recommendation != "Dress warmly." {
		t.Errorf("Recommendation = %v", got.Advisory.Recommendation)
	}

	wantAlerts := []string{models.AlertCold, models.AlertWind, models.AlertVisibility, models.AlertHumidity}
	if len(got.Advisory.Alerts) != len(wantAlerts) {
		t.Fatalf("alerts = %+v, want types %v", got.Advisory.Alerts, wantAlerts)
	}
	for i, a := range got.Advisory.Alerts {
		if a.Type != wantAlerts[i] {
			t.Errorf("alert[%d] = %q, want %q", i, a.Type, wantAlerts[i])
		}
	}
	if got.Advisory.Confidence != 75 {
		t.Errorf("Confidence = %d, want 75", got.Advisory.Confidence)
	}
	if got.Advisory.Conditions.WindCompass != "E" {
		t.Errorf("WindCompass = %q, want E", got.Advisory.Conditions.WindCompass)
	}

	if len(c.requests) != 1 {
		t.Fatalf("LLM requests = %d, want 1", len(c.requests))
	}
	req := c.requests[0]
	if req.Temperature != 0.7 || req.MaxTokens != llm.DefaultMaxTokens {
		t.Errorf("sampling = %v/%d, want 0.7/%d", req.Temperature, req.MaxTokens, llm.DefaultMaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"Bucharest", "Planned activity: running", "Preferences: no rain", "point-7", "Sunrise: 07:30"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "point-8") {
		t.Error("prompt includes more than 8 forecast points")
	}
}

func TestAdvisoryService_LLMFailureDegrades(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))

	p := &mockProvider{current: sampleSnapshot(), forecast: sampleForecast(4)}
	c := &mockCompleter{err: apperror.Upstream("llm", "HTTP 503", nil)}
	svc := NewAdvisoryService(p, c, 512)

	got, err := svc.GetWeatherAdvisory(ctx, "Bucharest", AdvisoryOptions{})
	if err != nil {
		t.Fatalf("GetWeatherAdvisory() error = %v, want degraded advisory", err)
	}
	if got.Advisory.Recommendation != nil {
		t.Errorf("Recommendation = %q, want nil", *got.Advisory.Recommendation)
	}
	if len(got.Advisory.Clothing) == 0 {
		t.Error("Clothing empty; rules must still apply")
	}
	if logs.FilterMessage("llm unavailable, serving rules-only advisory").Len() != 1 {
		t.Errorf("expected one degradation warning, got %d entries", logs.Len())
	}
	if c.requests[0].MaxTokens != 512 {
		t.Errorf("MaxTokens = %d, want 512", c.requests[0].MaxTokens)
	}
}

func TestAdvisoryService_EmptyCompletion(t *testing.T) {
	p := &mockProvider{current: sampleSnapshot(), forecast: sampleForecast(1)}
	svc := NewAdvisoryService(p, &mockCompleter{text: ""}, 0)

	got, err := svc.GetWeatherAdvisory(context.Background(), "Bucharest", AdvisoryOptions{})
	if err != nil {
		t.Fatalf("GetWeatherAdvisory() error = %v", err)
	}
	if got.Advisory.Recommendation != nil {
		t.Errorf("Recommendation = %q, want nil", *got.Advisory.Recommendation)
	}
}

func TestAdvisoryService_WeatherFailureWrapped(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockProvider
		wantKind apperror.Kind
	}{
		{"current not found", &mockProvider{currentErr: apperror.CityNotFound("Atlantis")}, apperror.KindCityNotFound},
		{"forecast upstream", &mockProvider{current: sampleSnapshot(), forecastErr: apperror.Upstream("weather api forecast", "HTTP 500", nil)}, apperror.KindUpstream},
		{"plain error", &mockProvider{currentErr: errors.New("boom")}, apperror.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mockCompleter{text: "unused"}
			_, err := NewAdvisoryService(tt.provider, c, 0).GetWeatherAdvisory(context.Background(), "Atlantis", AdvisoryOptions{})
			var e *apperror.Error
			if !errors.As(err, &e) || e.Kind != apperror.KindAdvisoryFailed {
				t.Fatalf("error = %v, want AdvisoryFailed wrapper", err)
			}
			if got := apperror.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v", got, tt.wantKind)
			}
			if len(c.requests) != 0 {
				t.Error("LLM called after weather failure")
			}
		})
	}
}

func TestAdvisoryService_GetPersonalizedRecommendations(t *testing.T) {
	p := &mockProvider{current: sampleSnapshot()}
	c := &mockCompleter{text: "Take the tram."}
	svc := NewAdvisoryService(p, c, 0)

	profile := models.UserProfile{"age": json.RawMessage(`34`), "healthConditions": json.RawMessage(`["asthma"]`)}
	planned := json.RawMessage(`["cycling","museum"]`)

	got, err := svc.GetPersonalizedRecommendations(context.Background(), "Bucharest", profile, planned)
	if err != nil {
		t.Fatalf("GetPersonalizedRecommendations() error = %v", err)
	}
	if got.PersonalizedAdvice == nil || *got.PersonalizedAdvice != "Take the tram." {
		t.Errorf("PersonalizedAdvice = %v", got.PersonalizedAdvice)
	}
	if string(got.PlannedActivities) != string(planned) || len(got.UserProfile) != 2 {
		t.Errorf("inputs not echoed: %+v", got)
	}
	if len(p.forecastReq) != 0 {
		t.Error("personalized flow fetched a forecast")
	}
	req := c.requests[0]
	if req.Temperature != 0.8 {
		t.Errorf("Temperature = %v, want 0.8", req.Temperature)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"\"age\": 34", "\"asthma\"", "\"cycling\"", "Weather in Bucharest", "Temperature: -1°C"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestAdvisoryService_PersonalizedLLMFailureFatal(t *testing.T) {
	p := &mockProvider{current: sampleSnapshot()}
	c := &mockCompleter{err: apperror.UpstreamConfiguration("llm", "API key is not configured")}

	_, err := NewAdvisoryService(p, c, 0).GetPersonalizedRecommendations(context.Background(), "Bucharest", nil, nil)
	if !apperror.Is(err, apperror.KindUpstreamConfiguration) {
		t.Errorf("error = %v, want configuration error", err)
	}
}

func TestBuildPersonalizedPrompt_NilInputs(t *testing.T) {
	prompt, err := buildPersonalizedPrompt("Cluj", sampleSnapshot(), nil, nil)
	if err != nil {
		t.Fatalf("buildPersonalizedPrompt() error = %v", err)
	}
	if !strings.Contains(prompt, "**Planned activities:**\nnull") {
		t.Errorf("prompt = %q, want null planned activities", prompt)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		12.5:  "12.5",
		3:     "3",
		-0.4:  "-0.4",
		0:     "0",
		21.25: "21.25",
	}
	for in, want := range tests {
		if got := formatNumber(in); got != want {
			t.Errorf("formatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}
