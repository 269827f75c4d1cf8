package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisory-service/internal/cache"
	"github.com/kjstillabower/weather-advisory-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-advisory-service/internal/client"
	"github.com/kjstillabower/weather-advisory-service/internal/config"
	"github.com/kjstillabower/weather-advisory-service/internal/degraded"
	httphandler "github.com/kjstillabower/weather-advisory-service/internal/http"
	"github.com/kjstillabower/weather-advisory-service/internal/lifecycle"
	"github.com/kjstillabower/weather-advisory-service/internal/llm"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
	"github.com/kjstillabower/weather-advisory-service/internal/service"
)

const llmBreakerName = "llm"

func main() {
	lifecycle.MarkStarted(time.Now())

	// .env may set LOG_LEVEL, so load it before the logger is built.
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, cfgErr := config.Load()
	env, version := os.Getenv("ENV_NAME"), ""
	if cfg != nil {
		env, version = cfg.Env, cfg.Version
	}
	logger, err := observability.NewLogger(env, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if cfgErr != nil {
		logger.Fatal("config", zap.Error(cfgErr))
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPILang, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	stores, err := cache.Open(cache.Options{
		Backend:               cfg.CacheBackend,
		TTL:                   cfg.CacheTTL,
		Capacity:              cfg.CacheCapacity,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		RedisURL:              cfg.RedisURL,
		RedisTimeout:          cfg.RedisTimeout,
	})
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", stores.Backend), zap.Duration("ttl", cfg.CacheTTL))

	weatherService := service.NewWeatherService(weatherClient, stores.Weather, stores.Forecast, service.Options{
		TTL:             cfg.CacheTTL,
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	})

	var llmOpts []llm.Option
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        llmBreakerName,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(llmBreakerName, from.String(), to.String(), int(to))
				logger.Warn("llm circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		observability.SetCircuitBreakerState(llmBreakerName, int(circuitbreaker.StateClosed))
		llmOpts = append(llmOpts, llm.WithCircuitBreaker(breaker))
		logger.Info("llm circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	if cfg.LLMAPIKey == "" {
		logger.Warn("LLM_API_KEY not set; advisories will be rule-based only")
	}
	llmClient := llm.NewClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMTimeout, llmOpts...)
	advisoryService := service.NewAdvisoryService(weatherService, llmClient, cfg.LLMMaxTokens)

	healthConfig := &httphandler.HealthConfig{
		Version:              cfg.Version,
		ErrorRateWindow:      cfg.HealthErrorRateWindow,
		DegradedErrorPct:     cfg.HealthDegradedErrorPct,
		OverloadWindow:       cfg.HealthOverloadWindow,
		OverloadThresholdPct: cfg.HealthOverloadThresholdPct,
		CachePing:            stores.Ping,
	}
	if breaker != nil {
		healthConfig.LLMState = func() string { return breaker.State().String() }
	}
	handler := httphandler.NewHandler(weatherService, advisoryService, healthConfig, logger, cfg.DevelopmentMode)

	observability.RegisterTrafficGauges(cfg.HealthErrorRateWindow)
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	degraded.StartRecoveryListener(appCtx, weatherClient.ValidateAPIKey, cfg.DegradedRetryInitial, cfg.DegradedRetryMax, func() {
		logger.Error("weather API key still rejected after recovery attempts; restart required after fixing the key")
	})
	if cfg.ValidateAPIKeyOnStart {
		if err := weatherClient.ValidateAPIKey(appCtx); err != nil {
			logger.Warn("weather API key validation failed", zap.Error(err))
			if client.CategorizeError(err) == client.ErrorCategoryConfiguration {
				degraded.Mark(degraded.ReasonInvalidAPIKey)
			}
		}
	}

	if len(cfg.WarmCities) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger)
		warmCtx, warmCancel := context.WithTimeout(appCtx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmCities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(appCtx, cfg.WarmCities, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	var limiter *httphandler.ClientRateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = httphandler.NewClientRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		RateLimiter:        limiter,
		RequestTimeout:     cfg.RequestTimeout,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Bool("development_mode", cfg.DevelopmentMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	cancelApp()
	_ = httphandler.Drain(srv, httphandler.DrainConfig{
		ShutdownTimeout: cfg.ShutdownTimeout,
		InFlightTimeout: cfg.ShutdownInFlightTimeout,
		CheckInterval:   cfg.ShutdownInFlightCheckInterval,
	}, logger)

	if err := stores.Close(); err != nil {
		logger.Error("cache close", zap.Error(err))
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}
