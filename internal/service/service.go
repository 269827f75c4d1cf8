package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisory-service/internal/apperror"
	"github.com/kjstillabower/weather-advisory-service/internal/cache"
	"github.com/kjstillabower/weather-advisory-service/internal/client"
	"github.com/kjstillabower/weather-advisory-service/internal/models"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
)

// WeatherProvider is the read side of WeatherService used by advisories and handlers.
type WeatherProvider interface {
	GetCurrentWeather(ctx context.Context, city string) (models.WeatherSnapshot, error)
	GetForecast(ctx context.Context, city string, days int) (models.ForecastSet, error)
}

// Options configures WeatherService.
type Options struct {
	// TTL applies to both current and forecast entries.
	TTL time.Duration
	// CoalesceTimeout bounds how long a caller waits on a shared fetch.
	// Coalescing is off when disabled or when the timeout is zero.
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
}

// WeatherService orchestrates weather retrieval using cache-aside with upstream
// fallback. Current conditions and forecasts are cached under separate keys.
type WeatherService struct {
	client   client.WeatherClient
	current  *cachedFetcher[models.WeatherSnapshot]
	forecast *cachedFetcher[models.ForecastSet]
}

// NewWeatherService creates a WeatherService over the given stores.
func NewWeatherService(c client.WeatherClient, weatherCache cache.Cache[models.WeatherSnapshot], forecastCache cache.Cache[models.ForecastSet], opts Options) *WeatherService {
	tracker := newStampedeTracker()
	current := &cachedFetcher[models.WeatherSnapshot]{
		cache:     weatherCache,
		cacheType: cache.KindWeather,
		ttl:       opts.TTL,
		stampede:  tracker,
	}
	forecast := &cachedFetcher[models.ForecastSet]{
		cache:     forecastCache,
		cacheType: cache.KindForecast,
		ttl:       opts.TTL,
		stampede:  tracker,
	}
	if opts.CoalesceEnabled && opts.CoalesceTimeout > 0 {
		current.coalescer = newRequestCoalescer[models.WeatherSnapshot](opts.CoalesceTimeout)
		forecast.coalescer = newRequestCoalescer[models.ForecastSet](opts.CoalesceTimeout)
	}
	return &WeatherService{client: c, current: current, forecast: forecast}
}

// GetCurrentWeather returns current conditions for city, from cache when fresh.
func (s *WeatherService) GetCurrentWeather(ctx context.Context, city string) (models.WeatherSnapshot, error) {
	city = strings.TrimSpace(city)
	observability.RecordWeatherQuery(city)
	data, err := s.current.get(ctx, cache.WeatherKey(city), city, func(ctx context.Context) (models.WeatherSnapshot, error) {
		return s.client.GetCurrentWeather(ctx, city)
	})
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("fetch weather for %s: %w", city, err)
	}
	return data, nil
}

// RefreshCurrentWeather fetches current conditions upstream and overwrites the
// cached entry, restarting its TTL. The cache warmer uses it so entries are
// replaced before they expire rather than after.
func (s *WeatherService) RefreshCurrentWeather(ctx context.Context, city string) (models.WeatherSnapshot, error) {
	city = strings.TrimSpace(city)
	data, err := s.client.GetCurrentWeather(ctx, city)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("refresh weather for %s: %w", city, err)
	}
	s.current.store(ctx, cache.WeatherKey(city), data)
	return data, nil
}

// GetForecast returns the three-hourly forecast for city. days of 0 means the
// default (5); other values are clamped to [1, 5].
func (s *WeatherService) GetForecast(ctx context.Context, city string, days int) (models.ForecastSet, error) {
	city = strings.TrimSpace(city)
	days = client.ClampForecastDays(days)
	data, err := s.forecast.get(ctx, cache.ForecastKey(city, days), city, func(ctx context.Context) (models.ForecastSet, error) {
		return s.client.GetForecast(ctx, city, days)
	})
	if err != nil {
		return models.ForecastSet{}, fmt.Errorf("fetch forecast for %s: %w", city, err)
	}
	return data, nil
}

// cachedFetcher runs the cache-aside flow for one value type.
type cachedFetcher[T any] struct {
	cache     cache.Cache[T]
	cacheType string
	ttl       time.Duration
	stampede  *stampedeTracker
	coalescer *requestCoalescer[T] // nil when coalescing is disabled
}

// get checks the cache, falls back to fetch on a miss and stores the result.
// Cache failures are logged and counted; they never fail the request.
func (f *cachedFetcher[T]) get(ctx context.Context, key, city string, fetch func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	getStart := time.Now()
	cached, ok, err := f.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		if ok {
			observability.CacheHitsTotal.WithLabelValues(f.cacheType).Inc()
			logger.Debug("cache hit", zap.String("key", key), zap.Duration("duration", time.Since(start)))
			return cached, nil
		}
	}
	observability.CacheMissesTotal.WithLabelValues(f.cacheType).Inc()

	concurrentMisses := f.stampede.RecordMiss(key)
	defer f.stampede.RecordHit(key)
	cityLabel := observability.MetricCityLabel(city)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(cityLabel).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(cityLabel).Observe(float64(concurrentMisses))
	}

	logger.Debug("cache miss, fetching upstream", zap.String("key", key))

	var data T
	var upstreamErr error
	if f.coalescer != nil {
		waitStart := time.Now()
		var shared bool
		data, shared, upstreamErr = f.coalescer.GetOrDo(ctx, key, fetch)
		if shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(cityLabel).Inc()
			observability.RequestCoalescingWaitSeconds.Observe(time.Since(waitStart).Seconds())
		}
		if upstreamErr != nil && errors.Is(upstreamErr, context.DeadlineExceeded) {
			if _, tagged := apperror.As(upstreamErr); !tagged {
				upstreamErr = apperror.Upstream("coalesce", "timed out waiting for upstream", upstreamErr)
			}
		}
	} else {
		data, upstreamErr = fetch(ctx)
	}
	if upstreamErr != nil {
		var zero T
		return zero, upstreamErr
	}

	f.store(ctx, key, data)
	logger.Debug("upstream served", zap.String("key", key), zap.Duration("duration", time.Since(start)))
	return data, nil
}

// store writes data under key. Failures are logged and counted only.
func (f *cachedFetcher[T]) store(ctx context.Context, key string, data T) {
	start := time.Now()
	if err := f.cache.Set(ctx, key, data, f.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(start).Seconds())
		observability.LoggerFromContext(ctx).Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(start).Seconds())
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "connection"
	}
	return "unknown"
}
