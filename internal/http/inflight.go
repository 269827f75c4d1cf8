package http

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-advisory-service/internal/lifecycle"
	"github.com/kjstillabower/weather-advisory-service/internal/observability"
)

// inFlight counts requests inside MetricsMiddleware across every router in
// the process, including the JSON 404 fallback.
var inFlight atomic.Int64

// InFlightCount returns the number of requests currently being served.
func InFlightCount() int64 {
	return inFlight.Load()
}

// WaitForInFlight polls every checkInterval until no request is in flight or ctx is done.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if InFlightCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdowner is satisfied by *http.Server.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// DrainConfig bounds the shutdown sequence. ShutdownTimeout limits
// srv.Shutdown; InFlightTimeout limits the wait for handlers still running
// after it returns.
type DrainConfig struct {
	ShutdownTimeout time.Duration
	InFlightTimeout time.Duration
	CheckInterval   time.Duration
}

// Drain marks the process as shutting down, so /health reports it, stops srv
// accepting connections and waits for in-flight requests. It returns the
// first error; the remaining count is logged when requests outlive the wait.
func Drain(srv Shutdowner, cfg DrainConfig, logger *zap.Logger) error {
	lifecycle.SetShuttingDown(true)

	n := InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", n))
	observability.RecordShutdownInFlight(n)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		logger.Error("server shutdown", zap.Error(shutdownErr))
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := WaitForInFlight(waitCtx, cfg.CheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", InFlightCount()))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}
