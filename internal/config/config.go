package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, secrets, .env and env.
type Config struct {
	Env             string
	DevelopmentMode bool
	Version         string

	ServerPort                    string
	CORSAllowedOrigins            []string
	RequestTimeout                time.Duration
	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	WeatherAPIKey         string
	WeatherAPIURL         string
	WeatherAPILang        string
	WeatherAPITimeout     time.Duration
	ValidateAPIKeyOnStart bool

	LLMAPIKey    string
	LLMBaseURL   string
	LLMModel     string
	LLMTimeout   time.Duration
	LLMMaxTokens int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheBackend  string // "in_memory", "memcached" or "redis"
	CacheTTL      time.Duration
	CacheCapacity int

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisURL     string
	RedisTimeout time.Duration

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	HealthErrorRateWindow      time.Duration
	HealthDegradedErrorPct     int
	HealthOverloadWindow       time.Duration
	HealthOverloadThresholdPct int

	DegradedRetryInitial time.Duration
	DegradedRetryMax     time.Duration

	WarmCities   []string
	WarmInterval time.Duration

	TrackedCities []string
}

type fileConfig struct {
	DevelopmentMode *bool  `yaml:"development_mode"`
	Version         string `yaml:"version"`

	Server struct {
		Port               string   `yaml:"port"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL                  string `yaml:"url"`
		Lang                 string `yaml:"lang"`
		Timeout              string `yaml:"timeout"`
		ValidateKeyOnStartup bool   `yaml:"validate_key_on_startup"`
	} `yaml:"weather_api"`

	LLM struct {
		URL            string `yaml:"url"`
		Model          string `yaml:"model"`
		Timeout        string `yaml:"timeout"`
		MaxTokens      int    `yaml:"max_tokens"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"llm"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Capacity  int    `yaml:"capacity"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			URL     string `yaml:"url"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
		WarmCities   []string `yaml:"warm_cities"`
		WarmInterval string   `yaml:"warm_interval"`
	} `yaml:"cache"`

	Coalesce struct {
		Enabled *bool  `yaml:"enabled"`
		Timeout string `yaml:"timeout"`
	} `yaml:"coalesce"`

	RateLimit struct {
		Max    int    `yaml:"max"`
		Window string `yaml:"window"`
	} `yaml:"rate_limit"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		ErrorRateWindow      string `yaml:"error_rate_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedRetryInitial string `yaml:"degraded_retry_initial"`
		DegradedRetryMax     string `yaml:"degraded_retry_max"`
	} `yaml:"health"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	LLMAPIKey     string `yaml:"llm_api_key"`
}

// LoadDotEnv loads .env from the working directory when present. Variables
// already set in the environment win. Safe to call more than once.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// API keys come from env (WEATHER_API_KEY, LLM_API_KEY) or the secrets file. Call from project root.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:             env,
		DevelopmentMode: env == "dev",
		Version:         fc.Version,
	}
	if fc.DevelopmentMode != nil {
		cfg.DevelopmentMode = *fc.DevelopmentMode
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "3000")
	cfg.CORSAllowedOrigins = corsOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), fc.Server.CORSAllowedOrigins, env)

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), os.Getenv("OPENWEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(strings.TrimSpace(fc.WeatherAPI.URL), "https://api.openweathermap.org/data/2.5")
	cfg.WeatherAPILang = firstNonEmpty(strings.TrimSpace(fc.WeatherAPI.Lang), "en")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.ValidateAPIKeyOnStart = fc.WeatherAPI.ValidateKeyOnStartup

	// A missing LLM key is not fatal: advisories degrade to rules only.
	cfg.LLMAPIKey = firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("GROQ_API_KEY"), sec.LLMAPIKey)
	cfg.LLMBaseURL = firstNonEmpty(strings.TrimSpace(fc.LLM.URL), "https://api.groq.com/openai/v1")
	cfg.LLMModel = firstNonEmpty(strings.TrimSpace(fc.LLM.Model), "llama3-8b-8192")
	cfg.LLMTimeout = parseDurationOrZero(fc.LLM.Timeout, 15*time.Second)
	cfg.LLMMaxTokens = fc.LLM.MaxTokens
	if cfg.LLMMaxTokens <= 0 {
		cfg.LLMMaxTokens = 1024
	}
	cfg.CircuitBreakerEnabled = true
	if fc.LLM.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.LLM.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.LLM.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.LLM.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.LLM.CircuitBreaker.Timeout, 30*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 300*time.Second)
	if secs, ok := envSeconds("CACHE_TTL"); ok {
		cfg.CacheTTL = secs
	}
	cfg.CacheCapacity = fc.Cache.Capacity
	if cfg.CacheCapacity < 0 {
		cfg.CacheCapacity = 0
	}
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisURL = firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_URL")), strings.TrimSpace(fc.Cache.Redis.URL), "redis://localhost:6379/0")
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)
	cfg.WarmCities = fc.Cache.WarmCities
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.CoalesceEnabled = true
	if fc.Coalesce.Enabled != nil {
		cfg.CoalesceEnabled = *fc.Coalesce.Enabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Coalesce.Timeout, 10*time.Second)

	cfg.RateLimitMax = fc.RateLimit.Max
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 100
	}
	if n, ok := envInt("RATE_LIMIT_MAX"); ok {
		cfg.RateLimitMax = n
	}
	cfg.RateLimitWindow = parseDuration(fc.RateLimit.Window, 900*time.Second)
	if secs, ok := envSeconds("RATE_LIMIT_WINDOW"); ok {
		cfg.RateLimitWindow = secs
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.HealthErrorRateWindow = parseDuration(fc.Health.ErrorRateWindow, 60*time.Second)
	cfg.HealthDegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.HealthDegradedErrorPct <= 0 {
		cfg.HealthDegradedErrorPct = 10
	}
	cfg.HealthOverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.HealthOverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.HealthOverloadThresholdPct <= 0 {
		cfg.HealthOverloadThresholdPct = 80
	}
	cfg.DegradedRetryInitial = parseDuration(fc.Health.DegradedRetryInitial, time.Minute)
	cfg.DegradedRetryMax = parseDuration(fc.Health.DegradedRetryMax, 20*time.Minute)

	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// devCORSOrigins is used outside prod when no origins are configured.
var devCORSOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// corsOrigins resolves the browser origin allow-list: a comma-separated env
// override, then YAML, then the local defaults for non-prod environments.
// Prod with nothing configured allows no cross-origin callers.
func corsOrigins(envValue string, fromFile []string, env string) []string {
	var out []string
	if strings.TrimSpace(envValue) != "" {
		for _, o := range strings.Split(envValue, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
		return out
	}
	for _, o := range fromFile {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 && env != "prod" {
		out = append(out, devCORSOrigins...)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// envInt reads a positive integer from the environment. Unset or unparsable values are ignored.
func envInt(name string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// envSeconds reads a positive whole number of seconds from the environment.
func envSeconds(name string) (time.Duration, bool) {
	n, ok := envInt(name)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above the
// slowest upstream call an advisory can make (two weather calls plus one LLM call).
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.LLMTimeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if minTimeout := 2*cfg.WeatherAPITimeout + cfg.LLMTimeout; cfg.RequestTimeout <= minTimeout {
		cfg.RequestTimeout = minTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "redis":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	return nil
}
