// Package config loads extractor settings from YAML, environment variables
// and command-line overrides.
//
// Precedence, lowest first: Default(), the YAML file, EXTRACT_* environment
// variables, then whatever the caller merges on top (usually CLI flags).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/paged-extract/pkg/logging"
	"github.com/Sternrassler/paged-extract/pkg/pagination"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config defines configuration for the extractor.
type Config struct {
	URL         string      `yaml:"url"`
	Output      string      `yaml:"output"`
	PageSize    int         `yaml:"page_size"`
	Workers     int         `yaml:"workers"`
	ActiveOnly  bool        `yaml:"active_only"` // false omits the active filter; default true
	KeyPrefix   string      `yaml:"key_prefix"`
	UserAgent   string      `yaml:"user_agent"`
	Timeout     Duration    `yaml:"timeout"`
	Schedule    string      `yaml:"schedule"`
	MetricsAddr string      `yaml:"metrics_addr"`
	API         APIConfig   `yaml:"api"`
	Retry       RetryConfig `yaml:"retry"`
	Redis       RedisConfig `yaml:"redis"`
	Log         LogConfig   `yaml:"log"`
}

// APIConfig names the query parameters and envelope fields of the API.
type APIConfig struct {
	PageParam      string `yaml:"page_param"`
	PageSizeParam  string `yaml:"page_size_param"`
	ActiveParam    string `yaml:"active_param"`
	ResultsField   string `yaml:"results_field"`
	RemainingField string `yaml:"remaining_field"`
}

// RetryConfig defines retry behavior for transient page failures.
type RetryConfig struct {
	Attempts   int      `yaml:"attempts"`
	Backoff    Duration `yaml:"backoff"`
	MaxBackoff Duration `yaml:"max_backoff"`
}

// RedisConfig enables the page response cache when URL is set.
type RedisConfig struct {
	URL      string   `yaml:"url"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Duration is a time.Duration written as "30s", "5m" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns a Config with sensible defaults.
func Default() Config {
	params := pagination.DefaultAPIParams()
	return Config{
		Output:     "output/records.ndjson",
		PageSize:   pagination.MaxPageSize,
		Workers:    5,
		ActiveOnly: true,
		UserAgent:  "paged-extract/1.0",
		Timeout:    Duration(30 * time.Second),
		API: APIConfig{
			PageParam:      params.PageParam,
			PageSizeParam:  params.PageSizeParam,
			ActiveParam:    params.ActiveParam,
			ResultsField:   params.ResultsField,
			RemainingField: params.RemainingField,
		},
		Retry: RetryConfig{
			Attempts:   3,
			Backoff:    Duration(time.Second),
			MaxBackoff: Duration(30 * time.Second),
		},
		Redis: RedisConfig{
			CacheTTL: Duration(10 * time.Minute),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of Default().
// Keys missing from the file keep their default value.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the EXTRACT_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("EXTRACT_BASE_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("EXTRACT_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("EXTRACT_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse EXTRACT_PAGE_SIZE: %w", err)
		}
		c.PageSize = n
	}
	if v := os.Getenv("EXTRACT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse EXTRACT_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("EXTRACT_ACTIVE_ONLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse EXTRACT_ACTIVE_ONLY: %w", err)
		}
		c.ActiveOnly = b
	}
	if v := os.Getenv("EXTRACT_USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("EXTRACT_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("EXTRACT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("EXTRACT_SCHEDULE"); v != "" {
		c.Schedule = v
	}
	if v := os.Getenv("EXTRACT_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so booleans can only be switched on.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.PageSize != 0 {
		c.PageSize = override.PageSize
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.KeyPrefix != "" {
		c.KeyPrefix = override.KeyPrefix
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.Schedule != "" {
		c.Schedule = override.Schedule
	}
	if override.MetricsAddr != "" {
		c.MetricsAddr = override.MetricsAddr
	}
	if override.Redis.URL != "" {
		c.Redis.URL = override.Redis.URL
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Pretty {
		c.Log.Pretty = true
	}
	return c
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("config: url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: url must be an absolute http(s) URL, got %q", c.URL)
	}
	if c.Output == "" {
		return errors.New("config: output is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("config: page_size must be positive")
	}
	if c.UserAgent == "" {
		return errors.New("config: user_agent is required")
	}
	if c.API.PageParam == "" || c.API.PageSizeParam == "" {
		return errors.New("config: api.page_param and api.page_size_param are required")
	}
	if c.API.ResultsField == "" || c.API.RemainingField == "" {
		return errors.New("config: api.results_field and api.remaining_field are required")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Redis.URL != "" && c.Redis.CacheTTL <= 0 {
		return errors.New("config: redis.cache_ttl must be positive when redis.url is set")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("config: invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

// APIParams converts the API section for the page fetcher.
// With ActiveOnly off the active filter is not sent at all.
func (c *Config) APIParams() pagination.APIParams {
	params := pagination.APIParams{
		PageParam:      c.API.PageParam,
		PageSizeParam:  c.API.PageSizeParam,
		ActiveParam:    c.API.ActiveParam,
		ResultsField:   c.API.ResultsField,
		RemainingField: c.API.RemainingField,
	}
	if !c.ActiveOnly {
		params.ActiveParam = ""
	}
	return params
}

// String renders the configuration for logs without credentials.
func (c Config) String() string {
	redisURL := c.Redis.URL
	if u, err := url.Parse(redisURL); err == nil && u.User != nil {
		u.User = url.User("***")
		redisURL = u.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "url=%s output=%s page_size=%d workers=%d", c.URL, c.Output, c.PageSize, c.Workers)
	if redisURL != "" {
		fmt.Fprintf(&b, " redis=%s", redisURL)
	}
	if c.Schedule != "" {
		fmt.Fprintf(&b, " schedule=%q", c.Schedule)
	}
	return b.String()
}
