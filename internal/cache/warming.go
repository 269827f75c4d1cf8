package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisory-service/internal/models"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
)

// WeatherFetcher is implemented by the service layer. RefreshCurrentWeather
// always fetches upstream and overwrites the cached entry, so a periodic pass
// shorter than the TTL replaces entries before they expire. CacheWarmer depends
// on this interface to avoid an import cycle with the service package.
type WeatherFetcher interface {
	RefreshCurrentWeather(ctx context.Context, city string) (models.WeatherSnapshot, error)
}

// CacheWarmer prefetches current conditions for a fixed list of cities.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every city concurrently. The returned error joins all per-city failures.
func (w *CacheWarmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("cities", len(cities)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			if _, err := w.fetcher.RefreshCurrentWeather(ctx, city); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", city, err))
				mu.Unlock()
			}
		}(city)
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// WarmPeriodic refreshes at interval until ctx is done. The first refresh
// happens after one interval; call Warm beforehand for an immediate pass.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, cities []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, cities); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
