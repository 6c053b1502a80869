package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Fields are exported so
// viper can unmarshal into them directly; access goes through the struct, not
// through getters.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`
	Query       QueryConfig       `mapstructure:"query" yaml:"query"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
}

// LoggingConfig controls log output, encoding, and rotation.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// CoordinatorConfig sizes the scheduler and its shared worker pool.
type CoordinatorConfig struct {
	// MaxWorkers is the size of the shared step pool.
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers"`
	// QueueDepth bounds the pool intake; submissions beyond it fail fast.
	QueueDepth int `mapstructure:"queue_depth" yaml:"queue_depth"`
	// DefaultTimeout bounds a dispatched step when the workflow definition
	// carries no timeout of its own.
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	// MaxConcurrentWorkflows bounds workflows running at the same time.
	MaxConcurrentWorkflows int `mapstructure:"max_concurrent_workflows" yaml:"max_concurrent_workflows"`
}

// QueryConfig controls the patent search stage.
type QueryConfig struct {
	// BaseURL points at an OPS-style published-data endpoint.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// MaxRequestsPerMinute throttles outbound search calls.
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// Offline serves synthesized results instead of calling the endpoint.
	Offline bool `mapstructure:"offline" yaml:"offline"`
}

// CacheConfig sizes the per-agent result caches.
type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries" yaml:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// StoreConfig controls optional run persistence.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// LLMConfig controls the optional language model collaborator used by the
// analysis stage.
type LLMConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

// SetDefaults registers the default value for every key so a bare run works
// without a config file.
func SetDefaults(v *viper.Viper) {
	// -- Logging --
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.service_name", "patentflow")
	v.SetDefault("logging.log_file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)

	// -- Coordinator --
	v.SetDefault("coordinator.max_workers", 4)
	v.SetDefault("coordinator.queue_depth", 16)
	v.SetDefault("coordinator.default_timeout", "5m")
	v.SetDefault("coordinator.max_concurrent_workflows", 8)

	// -- Query --
	v.SetDefault("query.base_url", "https://ops.epo.org/3.2/rest-services/published-data/search")
	v.SetDefault("query.max_requests_per_minute", 30)
	v.SetDefault("query.request_timeout", "30s")
	v.SetDefault("query.offline", true)

	// -- Cache --
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("cache.ttl", "5m")

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.dsn", "")

	// -- LLM --
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.2)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("llm.api_key", "PATENTFLOW_LLM_API_KEY")
	v.BindEnv("store.dsn", "PATENTFLOW_STORE_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal skips env-only bindings when the key never appeared in any
	// other source, so pick the secrets up directly.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("PATENTFLOW_LLM_API_KEY")
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = os.Getenv("PATENTFLOW_STORE_DSN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration produced by the registered defaults.
// Tests and embedding callers use it to skip the viper plumbing.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults must always validate; a failure here is a programming
		// error in SetDefaults.
		panic(fmt.Sprintf("default configuration invalid: %v", err))
	}
	return cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Coordinator.MaxWorkers <= 0 {
		return fmt.Errorf("coordinator.max_workers must be a positive integer")
	}
	if c.Coordinator.QueueDepth <= 0 {
		return fmt.Errorf("coordinator.queue_depth must be a positive integer")
	}
	if c.Coordinator.MaxConcurrentWorkflows <= 0 {
		return fmt.Errorf("coordinator.max_concurrent_workflows must be a positive integer")
	}
	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query configuration invalid: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the query stage settings.
func (q *QueryConfig) Validate() error {
	if q.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("max_requests_per_minute must be greater than 0")
	}
	if !q.Offline && q.BaseURL == "" {
		return fmt.Errorf("base_url is required when offline mode is disabled")
	}
	return nil
}

// Validate checks the store settings.
func (s *StoreConfig) Validate() error {
	if s.Enabled && s.DSN == "" {
		return fmt.Errorf("dsn is required when the store is enabled. Ensure PATENTFLOW_STORE_DSN is set")
	}
	return nil
}

// Validate checks the LLM settings.
func (l *LLMConfig) Validate() error {
	if !l.Enabled {
		return nil
	}
	if l.APIKey == "" {
		return fmt.Errorf("api key is required but not found. Ensure PATENTFLOW_LLM_API_KEY is set")
	}
	if l.Temperature < 0.0 || l.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
