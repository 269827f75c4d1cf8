package http

import (
	"net/http"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisory-service/internal/observability"
)

// RouterConfig configures the router. A nil RateLimiter disables rate limiting,
// a zero RequestTimeout disables the per-request deadline and an empty
// CORSAllowedOrigins disables CORS headers.
type RouterConfig struct {
	RateLimiter        *ClientRateLimiter
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
}

// NewRouter wires handler into a router. Rate limiting and request deadlines
// apply to /api routes only; /, /health and /metrics are never throttled.
// Security headers, CORS and gzip wrap the whole router so they also cover
// preflight requests and unmatched routes.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter().UseEncodedPath()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/", h.GetRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.RateLimiter, h.errors))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/weather/{city}", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/{city}/forecast", h.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/advisory/{city}", h.GetAdvisory).Methods(http.MethodGet)
	api.HandleFunc("/advisory/{city}/recommendations", h.PostRecommendations).Methods(http.MethodPost)

	// mux skips middleware for unmatched requests, so wrap the fallback explicitly.
	notFound := CorrelationIDMiddleware(logger)(MetricsMiddleware(http.HandlerFunc(h.NotFound)))
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = notFound

	return SecurityHeadersMiddleware(CORSMiddleware(cfg.CORSAllowedOrigins)(gorillahandlers.CompressHandler(router)))
}
