package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/degraded"
	"github.com/kjstillabower/weather-advisory-service/internal/models"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
)

// Forecast day bounds supported by the 5 day / 3 hour endpoint.
const (
	MinForecastDays     = 1
	MaxForecastDays     = 5
	DefaultForecastDays = 5
	PointsPerDay        = 8
)

// visibilityUnrestricted is reported by the provider as its maximum and used
// when the field is omitted.
const visibilityUnrestricted = 10000

// ClampForecastDays maps 0 to the default and bounds days to the supported range.
func ClampForecastDays(days int) int {
	if days == 0 {
		return DefaultForecastDays
	}
	if days < MinForecastDays {
		return MinForecastDays
	}
	if days > MaxForecastDays {
		return MaxForecastDays
	}
	return days
}

// WeatherClient fetches and normalizes upstream weather data. Implementations
// return apperror kinds: CityNotFound, UpstreamConfiguration or Upstream.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city string) (models.WeatherSnapshot, error)
	GetForecast(ctx context.Context, city string, days int) (models.ForecastSet, error)
}

// OpenWeatherClient calls the OpenWeatherMap 2.5 API. Each call is a single
// attempt; failures propagate immediately.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	lang    string
	timeout time.Duration

	// Deadlines come from the per-call context so timeouts surface as
	// context.DeadlineExceeded.
	client *http.Client
}

// NewOpenWeatherClient creates a client for baseURL (e.g.
// https://api.openweathermap.org/data/2.5). lang is the provider display locale.
func NewOpenWeatherClient(apiKey, baseURL, lang string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, apperror.UpstreamConfiguration("weather api", "API key is required")
	}
	if len(apiKey) < 10 {
		return nil, apperror.UpstreamConfiguration("weather api", "API key appears invalid (too short)")
	}
	if lang == "" {
		lang = "en"
	}
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		lang:    lang,
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

type weatherCondition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type currentResponse struct {
	Name       string `json:"name"`
	Dt         int64  `json:"dt"`
	Timezone   int    `json:"timezone"`
	Visibility *int   `json:"visibility"`
	Sys        struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Main struct {
		Temp      float64  `json:"temp"`
		FeelsLike float64  `json:"feels_like"`
		Pressure  *float64 `json:"pressure"`
		Humidity  int      `json:"humidity"`
	} `json:"main"`
	Weather []weatherCondition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
}

type forecastResponse struct {
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Weather []weatherCondition `json:"weather"`
		Wind    struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Rain *struct {
			ThreeHour float64 `json:"3h"`
		} `json:"rain"`
	} `json:"list"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// GetCurrentWeather fetches current conditions in metric units.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.WeatherSnapshot, error) {
	var resp currentResponse
	if err := c.call(ctx, "weather", city, nil, &resp); err != nil {
		return models.WeatherSnapshot{}, err
	}
	return mapCurrent(resp, city), nil
}

// GetForecast fetches days*8 three-hourly points. days is clamped to [1, 5].
func (c *OpenWeatherClient) GetForecast(ctx context.Context, city string, days int) (models.ForecastSet, error) {
	days = ClampForecastDays(days)
	extra := url.Values{}
	extra.Set("cnt", strconv.Itoa(days*PointsPerDay))

	var resp forecastResponse
	if err := c.call(ctx, "forecast", city, extra, &resp); err != nil {
		return models.ForecastSet{}, err
	}
	return mapForecast(resp, city), nil
}

func (c *OpenWeatherClient) call(ctx context.Context, endpoint, city string, extra url.Values, out interface{}) error {
	start := time.Now()
	op := "weather api " + endpoint

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, city, extra)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return apperror.Upstream(op, "build request", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return apperror.Upstream(op, "request timeout", err)
		}
		return apperror.Upstream(op, "http request failed", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperror.Upstream(op, "read response body", err)
	}
	if err := handleErrorResponse(op, city, resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperror.Upstream(op, "parse response", err)
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint, city string, extra url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	params.Set("lang", c.lang)
	for k, v := range extra {
		params[k] = v
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleErrorResponse tags non-2xx responses at the point of failure.
func handleErrorResponse(op, city string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch statusCode {
	case http.StatusNotFound:
		return apperror.CityNotFound(city)
	case http.StatusUnauthorized:
		degraded.Mark(degraded.ReasonInvalidAPIKey)
		return apperror.UpstreamConfiguration(op, "invalid API key")
	}
	detail := fmt.Sprintf("HTTP %d", statusCode)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Message != "" {
		detail += ": " + er.Message
	}
	return apperror.Upstream(op, detail, nil)
}

func mapCurrent(r currentResponse, requested string) models.WeatherSnapshot {
	var cond weatherCondition
	if len(r.Weather) > 0 {
		cond = r.Weather[0]
	}
	name := r.Name
	if name == "" {
		name = requested
	}
	visibility := visibilityUnrestricted
	if r.Visibility != nil {
		visibility = *r.Visibility
	}
	return models.WeatherSnapshot{
		City:           name,
		Country:        r.Sys.Country,
		Temperature:    r.Main.Temp,
		FeelsLike:      r.Main.FeelsLike,
		Humidity:       r.Main.Humidity,
		Pressure:       r.Main.Pressure,
		Description:    cond.Description,
		Icon:           cond.Icon,
		WindSpeed:      r.Wind.Speed,
		WindDirection:  r.Wind.Deg,
		Visibility:     visibility,
		Cloudiness:     r.Clouds.All,
		Sunrise:        time.Unix(r.Sys.Sunrise, 0).UTC(),
		Sunset:         time.Unix(r.Sys.Sunset, 0).UTC(),
		Timestamp:      time.Unix(r.Dt, 0).UTC(),
		TimezoneOffset: r.Timezone,
	}
}

func mapForecast(r forecastResponse, requested string) models.ForecastSet {
	name := r.City.Name
	if name == "" {
		name = requested
	}
	points := make([]models.ForecastPoint, 0, len(r.List))
	for _, item := range r.List {
		var cond weatherCondition
		if len(item.Weather) > 0 {
			cond = item.Weather[0]
		}
		var precip float64
		if item.Rain != nil {
			precip = item.Rain.ThreeHour
		}
		points = append(points, models.ForecastPoint{
			Datetime:      time.Unix(item.Dt, 0).UTC(),
			Temperature:   item.Main.Temp,
			FeelsLike:     item.Main.FeelsLike,
			Humidity:      item.Main.Humidity,
			Description:   cond.Description,
			Icon:          cond.Icon,
			WindSpeed:     item.Wind.Speed,
			Precipitation: precip,
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Datetime.Before(points[j].Datetime)
	})
	return models.ForecastSet{
		City:           name,
		Country:        r.City.Country,
		TimezoneOffset: r.City.Timezone,
		Forecasts:      points,
	}
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

// ValidateAPIKey issues one current-conditions request to confirm the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "weather", "London", nil)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return apperror.Upstream("weather api validate", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return apperror.UpstreamConfiguration("weather api validate", "API key is invalid or not activated")
	}
	if resp.StatusCode != http.StatusOK {
		return apperror.Upstream("weather api validate", fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	return nil
}
