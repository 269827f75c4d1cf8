package apperror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"plain error", errors.New("boom"), KindInternal},
		{"validation", Validation("bad city"), KindValidation},
		{"city not found", CityNotFound("Atlantis"), KindCityNotFound},
		{"wrapped with fmt", fmt.Errorf("fetch weather: %w", CityNotFound("Atlantis")), KindCityNotFound},
		{"rate limited", RateLimited(time.Second), KindRateLimited},
		{"configuration", UpstreamConfiguration("weather", "invalid API key"), KindUpstreamConfiguration},
		{"upstream", Upstream("weather", "HTTP 502", nil), KindUpstream},
		{"advisory wraps not found", AdvisoryFailed(CityNotFound("Atlantis")), KindCityNotFound},
		{"advisory wraps upstream", AdvisoryFailed(fmt.Errorf("forecast: %w", Upstream("forecast", "HTTP 500", nil))), KindUpstream},
		{"advisory wraps plain", AdvisoryFailed(errors.New("boom")), KindInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAs_SkipsAdvisoryWrapper(t *testing.T) {
	err := AdvisoryFailed(fmt.Errorf("current: %w", CityNotFound("Atlantis")))
	e, ok := As(err)
	if !ok {
		t.Fatal("As() ok = false, want true")
	}
	if e.Kind != KindCityNotFound || e.City != "Atlantis" {
		t.Errorf("As() = %+v, want CityNotFound for Atlantis", e)
	}
}

func TestAs_Untagged(t *testing.T) {
	if _, ok := As(errors.New("boom")); ok {
		t.Error("As() ok = true for untagged error, want false")
	}
}

func TestError_Message(t *testing.T) {
	err := AdvisoryFailed(CityNotFound("Atlantis"))
	if got := err.Error(); !strings.Contains(got, "Advisory generation failed") || !strings.Contains(got, "City 'Atlantis' not found") {
		t.Errorf("Error() = %q, want wrapper and cause text", got)
	}
	up := Upstream("forecast", "HTTP 503", errors.New("bad gateway"))
	if got := up.Error(); got != "forecast: HTTP 503: bad gateway" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorsIs_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Upstream("weather", "request failed", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}
