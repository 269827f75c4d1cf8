package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName identifies this service in logs and the /health body.
const ServiceName = "weather-advisory-service"

// NewLogger builds the JSON logger. Every entry carries service, env and
// version so lines from several deployments can share one sink. LOG_LEVEL
// selects the level.
func NewLogger(env, version string) (*zap.Logger, error) {
	return newLoggerConfig(env, version, os.Getenv("LOG_LEVEL")).Build()
}

func newLoggerConfig(env, version, level string) zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))
	cfg.InitialFields = map[string]interface{}{"service": ServiceName}
	if env != "" {
		cfg.InitialFields["env"] = env
	}
	if version != "" {
		cfg.InitialFields["version"] = version
	}
	return cfg
}

// parseLogLevel accepts debug, info, warn and error in any case. Anything
// else, including the panic levels, falls back to info.
func parseLogLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return lvl
}
