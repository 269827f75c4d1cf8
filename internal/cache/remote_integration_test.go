//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-advisory-service/internal/models"
)

func TestMemcachedCache_GetSet_Integration(t *testing.T) {
	client := NewMemcachedClient("localhost:11211", 500*time.Millisecond, 2)
	defer client.Close()
	c := NewMemcachedCache[models.WeatherSnapshot](client)

	ctx := context.Background()
	val := models.WeatherSnapshot{City: "New York", Temperature: 12.5}
	if err := c.Set(ctx, WeatherKey("New York"), val, time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Get(ctx, WeatherKey("new york"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || got.City != val.City || got.Temperature != val.Temperature {
		t.Errorf("Get() = %+v, %v; want %+v", got, ok, val)
	}

	if _, ok, err := c.Get(ctx, "weather:nonexistent"); err != nil || ok {
		t.Errorf("Get(miss) = ok %v, err %v; want false, nil", ok, err)
	}
}

func TestRedisCache_GetSet_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := NewRedisClient(addr, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	c := NewRedisCache[models.ForecastSet](client)
	val := models.ForecastSet{City: "Iași", Forecasts: []models.ForecastPoint{{Temperature: 3}}}
	if err := c.Set(ctx, ForecastKey("Iași", 2), val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, ForecastKey("iași", 2))
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if got.City != val.City || len(got.Forecasts) != 1 {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}
