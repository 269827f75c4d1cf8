package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/kjstillabower/weather-advisory-service/internal/models"
)

// Backend names accepted by Open.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Options selects and tunes a cache backend.
type Options struct {
	Backend  string
	TTL      time.Duration
	Capacity int // in_memory only, per store

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisURL     string
	RedisTimeout time.Duration
}

// Stores holds the typed caches the weather service owns, sharing one backend.
// Ping is nil for in_memory.
type Stores struct {
	Backend  string
	Weather  Cache[models.WeatherSnapshot]
	Forecast Cache[models.ForecastSet]
	Ping     func(ctx context.Context) error
	Close    func() error
}

// Open builds the stores for opts.Backend.
func Open(opts Options) (*Stores, error) {
	switch opts.Backend {
	case "", BackendInMemory:
		return &Stores{
			Backend:  BackendInMemory,
			Weather:  NewInMemoryCache[models.WeatherSnapshot](opts.TTL, opts.Capacity),
			Forecast: NewInMemoryCache[models.ForecastSet](opts.TTL, opts.Capacity),
			Close:    func() error { return nil },
		}, nil
	case BackendMemcached:
		client := NewMemcachedClient(opts.MemcachedAddrs, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns)
		return &Stores{
			Backend:  BackendMemcached,
			Weather:  NewMemcachedCache[models.WeatherSnapshot](client),
			Forecast: NewMemcachedCache[models.ForecastSet](client),
			Ping:     func(ctx context.Context) error { return client.Ping() },
			Close:    client.Close,
		}, nil
	case BackendRedis:
		client, err := NewRedisClient(opts.RedisURL, opts.RedisTimeout)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Backend:  BackendRedis,
			Weather:  NewRedisCache[models.WeatherSnapshot](client),
			Forecast: NewRedisCache[models.ForecastSet](client),
			Ping:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Close:    client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
