package observability

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":         zapcore.InfoLevel,
		"DEBUG":    zapcore.DebugLevel,
		" warn ":   zapcore.WarnLevel,
		"Error":    zapcore.ErrorLevel,
		"fatal":    zapcore.InfoLevel,
		"verbose":  zapcore.InfoLevel,
		"info":     zapcore.InfoLevel,
		"WARN\n":   zapcore.WarnLevel,
		"dpanic":   zapcore.InfoLevel,
		"  debug ": zapcore.DebugLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// logLines builds a logger from cfg writing to a temp file and returns the
// decoded JSON entries written by emit.
func logLines(t *testing.T, cfg zap.Config, emit func(*zap.Logger)) []map[string]interface{} {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	cfg.OutputPaths = []string{path}
	logger, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	emit(logger)
	_ = logger.Sync()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	var out []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("log line %q is not JSON: %v", sc.Text(), err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewLoggerConfig_ServiceFields(t *testing.T) {
	lines := logLines(t, newLoggerConfig("prod", "1.4.0", ""), func(l *zap.Logger) {
		l.Info("cache backend", zap.String("backend", "redis"))
	})
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	entry := lines[0]
	want := map[string]string{
		"service": ServiceName,
		"env":     "prod",
		"version": "1.4.0",
		"backend": "redis",
		"level":   "info",
		"msg":     "cache backend",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Errorf("entry has no timestamp key: %v", entry)
	}
}

func TestNewLoggerConfig_OmitsUnknownEnvAndVersion(t *testing.T) {
	lines := logLines(t, newLoggerConfig("", "", ""), func(l *zap.Logger) {
		l.Info("config")
	})
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	if lines[0]["service"] != ServiceName {
		t.Errorf("service = %v, want %q", lines[0]["service"], ServiceName)
	}
	for _, k := range []string{"env", "version"} {
		if _, ok := lines[0][k]; ok {
			t.Errorf("entry has %s before config is known: %v", k, lines[0])
		}
	}
}

func TestNewLoggerConfig_LevelFiltersDebug(t *testing.T) {
	lines := logLines(t, newLoggerConfig("dev", "dev", "WARN"), func(l *zap.Logger) {
		l.Debug("cache hit")
		l.Info("server starting")
		l.Warn("cache get failed")
	})
	if len(lines) != 1 || lines[0]["msg"] != "cache get failed" {
		t.Errorf("lines = %v, want only the warning", lines)
	}
}

func TestNewLogger_ReadsLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	logger, err := NewLogger("dev", "1.0.0")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn enabled with LOG_LEVEL=error")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error disabled with LOG_LEVEL=error")
	}
}
