package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/degraded"
	"github.com/kjstillabower/weather-advisory-service/internal/lifecycle"
	"github.com/kjstillabower/weather-advisory-service/internal/models"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
	"github.com/kjstillabower/weather-advisory-service/internal/service"
	"github.com/kjstillabower/weather-advisory-service/internal/traffic"
	"github.com/kjstillabower/weather-advisory-service/internal/validation"
)

const (
	apiName            = "Smart Weather Advisory API"
	apiDescription     = "AI-Powered Weather Advisory with personalized recommendations"
	maxRequestBodySize = 10 << 20
)

// Advisor produces advisories. Implemented by service.AdvisoryService.
type Advisor interface {
	GetWeatherAdvisory(ctx context.Context, city string, opts service.AdvisoryOptions) (models.Advisory, error)
	GetPersonalizedRecommendations(ctx context.Context, city string, profile models.UserProfile, planned json.RawMessage) (models.PersonalizedRecommendation, error)
}

// HealthConfig holds the inputs for the health report. Every field is optional.
type HealthConfig struct {
	Version string
	// ErrorRateWindow and DegradedErrorPct mark the service degraded when the
	// share of 5xx responses in the window reaches the percentage.
	ErrorRateWindow  time.Duration
	DegradedErrorPct int
	// CachePing checks remote cache reachability. Nil for the in-memory backend.
	CachePing func(ctx context.Context) error
	// LLMState reports the LLM circuit breaker state.
	LLMState func() string
	// OverloadWindow and OverloadThresholdPct mark the service overloaded when
	// rate-limit denials reach the percentage of requests in the window.
	OverloadWindow       time.Duration
	OverloadThresholdPct int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          service.WeatherProvider
	advisor          Advisor
	healthConfig     *HealthConfig
	logger           *zap.Logger
	errors           errorTranslator
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. devMode exposes internal error messages in 500 responses.
func NewHandler(weather service.WeatherProvider, advisor Advisor, healthConfig *HealthConfig, logger *zap.Logger, devMode bool) *Handler {
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:      weather,
		advisor:      advisor,
		healthConfig: healthConfig,
		logger:       logger,
		errors:       errorTranslator{devMode: devMode},
	}
}

// cityParam unescapes and validates the {city} path variable. The router
// matches on the escaped path, so "a%2Fb" reaches here as one segment and
// fails validation instead of missing the route. It writes the error response
// and returns false when validation fails.
func (h *Handler) cityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw, err := url.PathUnescape(mux.Vars(r)["city"])
	if err != nil {
		h.errors.write(w, r, validation.ErrCityInvalidChars)
		return "", false
	}
	city, err := validation.ValidateCity(raw)
	if err != nil {
		h.errors.write(w, r, err)
		return "", false
	}
	return city, true
}

// GetWeather handles GET /api/weather/{city}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	result, err := h.weather.GetCurrentWeather(r.Context(), city)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeSuccess(w, result)
}

// GetForecast handles GET /api/weather/{city}/forecast?days=N.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	days, err := validation.ParseDays(r.URL.Query().Get("days"))
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	result, err := h.weather.GetForecast(r.Context(), city, days)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeSuccess(w, result)
}

// GetAdvisory handles GET /api/advisory/{city}?activity=&preferences=.
func (h *Handler) GetAdvisory(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.advisor.GetWeatherAdvisory(r.Context(), city, service.AdvisoryOptions{
		Activity:    q.Get("activity"),
		Preferences: q.Get("preferences"),
	})
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeSuccess(w, result)
}

type recommendationsRequest struct {
	UserProfile       json.RawMessage `json:"userProfile"`
	PlannedActivities json.RawMessage `json:"plannedActivities"`
}

// PostRecommendations handles POST /api/advisory/{city}/recommendations.
func (h *Handler) PostRecommendations(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}

	var body recommendationsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.errors.write(w, r, apperror.Validation("Request body exceeds the 10MB limit"))
			return
		}
		h.errors.write(w, r, validation.ErrInvalidRequestBody)
		return
	}

	profile, err := validation.ValidateProfile(body.UserProfile)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	result, err := h.advisor.GetPersonalizedRecommendations(r.Context(), city, profile, body.PlannedActivities)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeSuccess(w, result)
}

// GetRoot handles GET /. Describes the API.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        apiName,
		"version":     h.version(),
		"description": apiDescription,
		"endpoints": map[string]string{
			"weather":         "/api/weather/:city",
			"forecast":        "/api/weather/:city/forecast?days=1-5",
			"advisory":        "/api/advisory/:city",
			"recommendations": "POST /api/advisory/:city/recommendations",
			"health":          "/health",
			"metrics":         "/metrics",
		},
	})
}

// NotFound handles unknown routes and methods.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":   "Endpoint not found",
		"message": fmt.Sprintf("Route %s not found", r.URL.RequestURI()),
	})
}

// GetHealth handles GET /health. Always 200; checks carry the detail.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	checks, condition, reason := h.computeHealthChecks(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != condition {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", condition),
			zap.String("reason", reason))
	}
	h.healthStatusPrev = condition
	h.healthStatusMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "OK",
		"service":   observability.ServiceName,
		"version":   h.version(),
		"condition": condition,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"uptime":    lifecycle.Uptime().Seconds(),
	})
}

// computeHealthChecks evaluates dependencies in priority order: shutting-down >
// invalid API key > cache unreachable > overloaded > error-rate breach > healthy.
func (h *Handler) computeHealthChecks(ctx context.Context) (map[string]string, string, string) {
	checks := make(map[string]string)
	var degradations []string
	condition, reason := "healthy", ""

	if active, why := degraded.Active(); active {
		checks["weatherApi"] = why
		degradations = append(degradations, why)
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig.CachePing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.healthConfig.CachePing(pingCtx)
		cancel()
		if err != nil {
			checks["cache"] = "unhealthy"
			degradations = append(degradations, "cache_unreachable")
		} else {
			checks["cache"] = "healthy"
		}
	}
	if h.healthConfig.LLMState != nil {
		checks["llm"] = h.healthConfig.LLMState()
	}
	if len(degradations) > 0 {
		condition, reason = "degraded", degradations[0]
	}

	if w := h.healthConfig.OverloadWindow; w > 0 && h.healthConfig.OverloadThresholdPct > 0 && condition == "healthy" {
		if total := traffic.RequestCount(w); total > 0 && traffic.DenialCount(w)*100/total >= h.healthConfig.OverloadThresholdPct {
			condition, reason = "overloaded", "rate_limit_denials"
		}
	}
	if h.healthConfig.ErrorRateWindow > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.ErrorRateWindow)
		pct := 0
		if total > 0 {
			pct = errs * 100 / total
		}
		checks["errorRate"] = fmt.Sprintf("%d%%", pct)
		if condition == "healthy" && h.healthConfig.DegradedErrorPct > 0 && total > 0 && pct >= h.healthConfig.DegradedErrorPct {
			condition, reason = "degraded", "error_rate_breach"
		}
	}
	if lifecycle.IsShuttingDown() {
		condition, reason = "shutting-down", "signal"
	}
	return checks, condition, reason
}

func (h *Handler) version() string {
	if h.healthConfig.Version == "" {
		return "dev"
	}
	return h.healthConfig.Version
}
