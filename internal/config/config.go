// Package config loads service configuration from config/{ENV_NAME}.yaml, an optional
// config/secrets.yaml, and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
)

// Cache backends.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendPostgres  = "postgres"
)

// Weather history providers.
const (
	ProviderVisualCrossing = "visual_crossing"
	ProviderNOAA           = "noaa"
)

const defaultWeatherAPIURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services"

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	ReadyDelay      time.Duration

	WeatherProvider     string
	WeatherAPIKey       string
	NOAAToken           string
	WeatherAPIURL       string
	WeatherAPITimeout   time.Duration
	WeatherFetchTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	CacheBackend          string
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	DatabaseURL           string

	WarmTargets     []cache.WarmTarget
	WarmInterval    time.Duration
	WarmConcurrency int

	KafkaBrokers      []string
	KafkaTopic        string
	KafkaWriteTimeout time.Duration

	GeminiAPIKey string
	GeminiModel  string
	LLMTimeout   time.Duration

	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		Provider     string `yaml:"provider"`
		URL          string `yaml:"url"`
		Timeout      string `yaml:"timeout"`
		FetchTimeout string `yaml:"fetch_timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warming struct {
			Interval    string             `yaml:"interval"`
			Concurrency int                `yaml:"concurrency"`
			Targets     []cache.WarmTarget `yaml:"targets"`
		} `yaml:"warming"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		WriteTimeout string   `yaml:"write_timeout"`
	} `yaml:"kafka"`

	LLM struct {
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"llm"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		ReadyDelay         string `yaml:"ready_delay"`
		DegradedWindow     string `yaml:"degraded_window"`
		DegradedErrorPct   int    `yaml:"degraded_error_pct"`
		DegradedMinSamples int    `yaml:"degraded_min_samples"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	NOAAToken     string `yaml:"noaa_token"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	DatabaseURL   string `yaml:"database_url"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml under root.
// Secrets come from env first, then the secrets file. A missing weather key is not an
// error: the service then runs on cached history and state estimates only.
func LoadFrom(root string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(root, "config", env+".yaml")
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

	sec, err := loadSecrets(filepath.Join(root, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ReadyDelay = parseDurationOrZero(fc.Lifecycle.ReadyDelay, 0)

	cfg.WeatherProvider = strings.ToLower(firstNonEmpty(os.Getenv("WEATHER_PROVIDER"), fc.WeatherAPI.Provider, ProviderVisualCrossing))
	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	cfg.NOAAToken = firstNonEmpty(os.Getenv("NOAA_TOKEN"), sec.NOAAToken)
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, defaultWeatherAPIURL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 30*time.Second)
	cfg.WeatherFetchTimeout = parseDuration(fc.WeatherAPI.FetchTimeout, 60*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 5*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cfg.BreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 2
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendInMemory)))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, cache.DefaultTTL)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseURL)

	cfg.WarmTargets = fc.Cache.Warming.Targets
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warming.Interval, 0)
	cfg.WarmConcurrency = fc.Cache.Warming.Concurrency
	if cfg.WarmConcurrency <= 0 {
		cfg.WarmConcurrency = 4
	}

	cfg.KafkaBrokers = fc.Kafka.Brokers
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	cfg.KafkaTopic = firstNonEmpty(os.Getenv("KAFKA_TOPIC"), fc.Kafka.Topic, "maintenance-tasks")
	cfg.KafkaWriteTimeout = parseDuration(fc.Kafka.WriteTimeout, 10*time.Second)

	cfg.GeminiAPIKey = firstNonEmpty(os.Getenv("GEMINI_API_KEY"), sec.GeminiAPIKey)
	cfg.GeminiModel = firstNonEmpty(os.Getenv("GEMINI_MODEL"), fc.LLM.Model)
	cfg.LLMTimeout = parseDuration(fc.LLM.Timeout, 60*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedMinSamples = fc.Lifecycle.DegradedMinSamples
	if cfg.DegradedMinSamples <= 0 {
		cfg.DegradedMinSamples = 10
	}

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

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validate performs post-load validation. RequestTimeout is raised above the slowest
// upstream call so handlers are not cut off before their dependencies give up.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	slowest := max(cfg.WeatherAPITimeout, cfg.LLMTimeout)
	if cfg.RequestTimeout <= slowest {
		cfg.RequestTimeout = slowest + time.Second
	}
	switch cfg.CacheBackend {
	case BackendInMemory, BackendMemcached:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("cache.backend postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or postgres, got %q", cfg.CacheBackend)
	}
	switch cfg.WeatherProvider {
	case ProviderVisualCrossing, ProviderNOAA:
	default:
		return fmt.Errorf("weather_api.provider must be visual_crossing or noaa, got %q", cfg.WeatherProvider)
	}
	for i, t := range cfg.WarmTargets {
		if cache.NormalizeZip(t.ZipCode) == "" {
			return fmt.Errorf("cache.warming.targets[%d]: zip_code is required", i)
		}
	}
	return nil
}
