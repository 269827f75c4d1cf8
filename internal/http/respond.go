package http

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
	"github.com/kjstillabower/weather-advisory-service/internal/traffic"
)

// Error categories returned in the "error" field of failure envelopes.
const (
	categoryValidation    = "Validation Error"
	categoryCityNotFound  = "City Not Found"
	categoryRateLimited   = "Rate Limit Exceeded"
	categoryConfiguration = "API Configuration Error"
	categoryInternal      = "Internal Server Error"

	messageUnavailable = "Service temporarily unavailable"
	messageGeneric     = "Something went wrong"
)

type successEnvelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

type errorEnvelope struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSuccess wraps data in the success envelope.
func writeSuccess(w http.ResponseWriter, data interface{}) {
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, successEnvelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// errorTranslator maps error kinds to status codes and envelopes. Messages of
// internal failures are only exposed in development mode.
type errorTranslator struct {
	devMode bool
}

// translate resolves err to a status code and envelope. It never inspects message text.
func (t errorTranslator) translate(err error) (int, errorEnvelope) {
	e, _ := apperror.As(err)
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return http.StatusBadRequest, errorEnvelope{Error: categoryValidation, Message: e.Message}
	case apperror.KindCityNotFound:
		return http.StatusNotFound, errorEnvelope{Error: categoryCityNotFound, Message: e.Message}
	case apperror.KindRateLimited:
		secs := retryAfterSeconds(e.RetryAfter)
		return http.StatusTooManyRequests, errorEnvelope{Error: categoryRateLimited, Message: e.Message, RetryAfter: &secs}
	case apperror.KindUpstreamConfiguration:
		return http.StatusUnauthorized, errorEnvelope{Error: categoryConfiguration, Message: messageUnavailable}
	}
	msg := messageGeneric
	if t.devMode {
		msg = err.Error()
	}
	return http.StatusInternalServerError, errorEnvelope{Error: categoryInternal, Message: msg}
}

// write translates err, logs it and writes the failure envelope. 5xx are
// logged at Error, everything else at Debug.
func (t errorTranslator) write(w http.ResponseWriter, r *http.Request, err error) {
	status, env := t.translate(err)

	logger := observability.LoggerFromContext(r.Context())
	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("kind", apperror.KindOf(err).String()),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	switch {
	case status >= 500:
		traffic.RecordError()
		logger.Error("request failed", fields...)
	case status == http.StatusTooManyRequests:
		logger.Debug("request rate limited", fields...)
	default:
		traffic.RecordSuccess()
		logger.Debug("request rejected", fields...)
	}

	if env.RetryAfter != nil {
		w.Header().Set("Retry-After", strconv.Itoa(*env.RetryAfter))
	}
	writeJSON(w, status, env)
}

// retryAfterSeconds rounds up to whole seconds, minimum 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
