package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies label dimensions match usage across client, llm, http, service and cache.
func TestMetrics_Usable(t *testing.T) {
	// Route uses the path template to bound cardinality.
	HTTPRequestsTotal.WithLabelValues("GET", "/api/weather/{city}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/weather/{city}").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("weather", "success").Inc()
	WeatherAPIDuration.WithLabelValues("forecast", "server_error").Observe(0.1)
	LLMCallsTotal.WithLabelValues("success").Inc()
	LLMDuration.WithLabelValues("success").Observe(1.2)
	LLMTokensTotal.WithLabelValues("prompt").Add(120)
	AdvisoriesTotal.WithLabelValues("standard", "degraded").Inc()
	CacheHitsTotal.WithLabelValues("weather").Inc()
	CacheMissesTotal.WithLabelValues("forecast").Inc()
	CacheErrorsTotal.WithLabelValues("get", "timeout").Inc()
	CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(0.001)
	CacheStampedeConcurrency.WithLabelValues("other").Observe(2)
	CacheStampedeDetectedTotal.WithLabelValues("other").Inc()
	RequestCoalescingHitsTotal.WithLabelValues("other").Inc()
}

func TestMetricCityLabel(t *testing.T) {
	SetTrackedCities([]string{"Bucharest", " cluj "})
	defer SetTrackedCities(nil)

	tests := []struct{ in, want string }{
		{"Bucharest", "bucharest"},
		{"CLUJ", "cluj"},
		{"Iasi", "other"},
	}
	for _, tt := range tests {
		if got := MetricCityLabel(tt.in); got != tt.want {
			t.Errorf("MetricCityLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordWeatherQuery(t *testing.T) {
	SetTrackedCities([]string{"bucharest"})
	defer SetTrackedCities(nil)

	before := testutil.ToFloat64(WeatherQueriesByCityTotal.WithLabelValues("bucharest"))
	beforeOther := testutil.ToFloat64(WeatherQueriesByCityTotal.WithLabelValues("other"))
	RecordWeatherQuery("Bucharest")
	RecordWeatherQuery("Atlantis")
	if got := testutil.ToFloat64(WeatherQueriesByCityTotal.WithLabelValues("bucharest")); got != before+1 {
		t.Errorf("bucharest count = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(WeatherQueriesByCityTotal.WithLabelValues("other")); got != beforeOther+1 {
		t.Errorf("other count = %v, want %v", got, beforeOther+1)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("llm", "closed", "open", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("llm")); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("llm", "closed", "open")); got < 1 {
		t.Errorf("transitions = %v, want >= 1", got)
	}
}

// TestMetricsHandler verifies the handler serves the registered metric families.
func TestMetricsHandler(t *testing.T) {
	RegisterTrafficGauges(0)
	LLMDegradedTotal.Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"llmDegradedTotal", "httpRequestsInFlight", "requestsInWindow", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
