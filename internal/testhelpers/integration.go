//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-advisory-service/internal/cache"
	"github.com/kjstillabower/weather-advisory-service/internal/client"
	"github.com/kjstillabower/weather-advisory-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey         string
	APIURL         string
	CacheBackend   string // "in_memory", "memcached" or "redis"
	MemcachedAddrs string
	RedisURL       string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5"
	}
	memcachedAddrs := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddrs == "" {
		memcachedAddrs = "localhost:11211"
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	return IntegrationTestConfig{
		APIKey:         apiKey,
		APIURL:         apiURL,
		CacheBackend:   os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddrs: memcachedAddrs,
		RedisURL:       redisURL,
	}
}

// SetupIntegrationService creates a weather service against the live API.
// A remote cache backend that does not answer a ping falls back to in_memory.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, *cache.Stores) {
	t.Helper()
	weatherClient := SetupIntegrationClient(t, cfg)

	opts := cache.Options{
		Backend:               cfg.CacheBackend,
		TTL:                   5 * time.Minute,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      500 * time.Millisecond,
		MemcachedMaxIdleConns: 2,
		RedisURL:              cfg.RedisURL,
		RedisTimeout:          500 * time.Millisecond,
	}
	stores, err := cache.Open(opts)
	if err == nil && stores.Ping != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = stores.Ping(ctx)
		cancel()
		if err != nil {
			_ = stores.Close()
		}
	}
	if err != nil {
		t.Logf("%s cache not available (%v), using in-memory cache", cfg.CacheBackend, err)
		opts.Backend = cache.BackendInMemory
		stores, _ = cache.Open(opts)
	}
	t.Cleanup(func() { _ = stores.Close() })

	svc := service.NewWeatherService(weatherClient, stores.Weather, stores.Forecast, service.Options{
		TTL:             opts.TTL,
		CoalesceEnabled: true,
		CoalesceTimeout: 10 * time.Second,
	})
	return svc, stores
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, "en", 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
