package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	HKOBaseURL      string
	HKOOpenDataURL  string
	HKORegionalURL  string
	HKOOCFURL       string
	HKOTimeout      time.Duration
	HKORateLimit    float64
	HKORateBurst    int
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	DocumentTimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	ConditionsInterval time.Duration
	WarningsInterval   time.Duration
	TipsInterval       time.Duration
	FetchTimeout       time.Duration
	FetchWorkers       int
	ScheduleEnabled    bool

	SettingsDBPath string

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	HKO struct {
		BaseURL         string  `yaml:"base_url"`
		OpenDataURL     string  `yaml:"opendata_url"`
		RegionalURL     string  `yaml:"regional_url"`
		OCFURL          string  `yaml:"ocf_url"`
		Timeout         string  `yaml:"timeout"`
		RateLimit       float64 `yaml:"rate_limit"`
		RateBurst       int     `yaml:"rate_burst"`
		DocumentTimeout string  `yaml:"document_timeout"`
	} `yaml:"hko"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	CircuitBreaker struct {
		Enabled          *bool  `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Refresh struct {
		Interval           string `yaml:"interval"`
		ConditionsInterval string `yaml:"conditions_interval"`
		WarningsInterval   string `yaml:"warnings_interval"`
		TipsInterval       string `yaml:"tips_interval"`
		FetchTimeout       string `yaml:"fetch_timeout"`
		Workers            int    `yaml:"workers"`
		ScheduleEnabled    *bool  `yaml:"schedule_enabled"`
	} `yaml:"refresh"`

	Settings struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"settings"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), after
// loading .env into the environment if present. Env overrides: CACHE_BACKEND,
// MEMCACHED_ADDRS, HKO_BASE_URL, HKO_OPENDATA_URL, HKO_REGIONAL_URL,
// HKO_OCF_URL, SETTINGS_DB_PATH. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
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

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.HKOBaseURL = envOr("HKO_BASE_URL", fc.HKO.BaseURL)
	if cfg.HKOBaseURL == "" {
		cfg.HKOBaseURL = "https://data.weather.gov.hk/weatherAPI/opendata/weather.php"
	}
	// Empty means the client's default endpoint.
	cfg.HKOOpenDataURL = envOr("HKO_OPENDATA_URL", fc.HKO.OpenDataURL)
	cfg.HKORegionalURL = envOr("HKO_REGIONAL_URL", fc.HKO.RegionalURL)
	cfg.HKOOCFURL = envOr("HKO_OCF_URL", fc.HKO.OCFURL)
	cfg.HKOTimeout = parseDurationOrZero(fc.HKO.Timeout, 5*time.Second)
	cfg.HKORateLimit = fc.HKO.RateLimit
	if cfg.HKORateLimit < 0 {
		cfg.HKORateLimit = 0
	}
	cfg.HKORateBurst = fc.HKO.RateBurst
	if cfg.HKORateBurst <= 0 {
		cfg.HKORateBurst = 8
	}
	cfg.DocumentTimeout = parseDuration(fc.HKO.DocumentTimeout, 20*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}

	cfg.CircuitBreakerEnabled = true
	if fc.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 2*time.Minute)
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	interval := parseDuration(fc.Refresh.Interval, 30*time.Minute)
	cfg.ConditionsInterval = parseDuration(fc.Refresh.ConditionsInterval, interval)
	cfg.WarningsInterval = parseDuration(fc.Refresh.WarningsInterval, interval)
	cfg.TipsInterval = parseDuration(fc.Refresh.TipsInterval, interval)
	cfg.FetchTimeout = parseDuration(fc.Refresh.FetchTimeout, 30*time.Second)
	cfg.FetchWorkers = fc.Refresh.Workers
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 3
	}
	cfg.ScheduleEnabled = true
	if fc.Refresh.ScheduleEnabled != nil {
		cfg.ScheduleEnabled = *fc.Refresh.ScheduleEnabled
	}

	cfg.SettingsDBPath = envOr("SETTINGS_DB_PATH", fc.Settings.DBPath)
	if cfg.SettingsDBPath == "" {
		cfg.SettingsDBPath = filepath.Join(xdg.DataHome, "hkweather", "settings.db")
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
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

// validate performs post-load validation. A fetch must be allowed to run at
// least one full HKO attempt, so FetchTimeout is raised to cover HKOTimeout.
func validate(cfg *Config) error {
	if cfg.HKOTimeout <= 0 {
		return fmt.Errorf("hko.timeout must be positive")
	}
	if cfg.FetchTimeout < cfg.HKOTimeout {
		cfg.FetchTimeout = cfg.HKOTimeout
	}
	if cfg.DocumentTimeout > cfg.FetchTimeout {
		cfg.DocumentTimeout = cfg.FetchTimeout
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.CircuitBreakerEnabled && cfg.CircuitBreakerTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.timeout must be positive")
	}
	return nil
}
