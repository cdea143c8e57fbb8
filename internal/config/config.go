// Package config provides configuration management for the service. Values
// come from a YAML config file and environment variables, with environment
// taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/applyflow/jobcrawl/internal/database"
	"github.com/applyflow/jobcrawl/internal/events"
	"github.com/applyflow/jobcrawl/internal/logger"
	"github.com/applyflow/jobcrawl/internal/ratelimit"
)

// Server defaults.
const (
	defaultServerAddress      = ":8080"
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 30 * time.Second
	defaultServerIdleTimeout  = 60 * time.Second
)

// Crawl defaults.
const (
	defaultMaxConcurrentFetches = 5
	defaultTickInterval         = time.Minute
	defaultRateLimitMaxCalls    = 30
	defaultRateLimitWindow      = time.Hour
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `yaml:"address" mapstructure:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// CrawlConfig holds crawl orchestration configuration.
type CrawlConfig struct {
	// MaxConcurrentFetches bounds per-run source fan-out.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches" mapstructure:"max_concurrent_fetches"`
	// TickInterval is the scheduler's due-scan period.
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	// RateLimit is the per-source sliding window policy.
	RateLimit ratelimit.Config `yaml:"rate_limit" mapstructure:"rate_limit"`
	// EventsEnabled wires the Redis Streams event publisher when true.
	EventsEnabled bool `yaml:"events_enabled" mapstructure:"events_enabled"`
}

// Config represents the application configuration.
type Config struct {
	Log      logger.Config   `yaml:"log" mapstructure:"log"`
	Database database.Config `yaml:"database" mapstructure:"database"`
	Redis    events.Config   `yaml:"redis" mapstructure:"redis"`
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Crawl    CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
}

// Load reads configuration from .env, environment variables and an optional
// config.yaml, applies defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers fallback values for every tunable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "jobcrawl")
	v.SetDefault("database.dbname", "jobcrawl")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "jobcrawl")

	v.SetDefault("server.address", defaultServerAddress)
	v.SetDefault("server.read_timeout", defaultServerReadTimeout)
	v.SetDefault("server.write_timeout", defaultServerWriteTimeout)
	v.SetDefault("server.idle_timeout", defaultServerIdleTimeout)

	v.SetDefault("crawl.max_concurrent_fetches", defaultMaxConcurrentFetches)
	v.SetDefault("crawl.tick_interval", defaultTickInterval)
	v.SetDefault("crawl.rate_limit.max_calls", defaultRateLimitMaxCalls)
	v.SetDefault("crawl.rate_limit.window", defaultRateLimitWindow)
	v.SetDefault("crawl.events_enabled", false)
}

// Validate checks the loaded configuration for unusable values.
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.DBName == "" {
		return errors.New("database host and dbname are required")
	}
	if c.Crawl.MaxConcurrentFetches <= 0 {
		return errors.New("crawl.max_concurrent_fetches must be positive")
	}
	if c.Crawl.TickInterval <= 0 {
		return errors.New("crawl.tick_interval must be positive")
	}
	if c.Crawl.EventsEnabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when crawl events are enabled")
	}
	return nil
}
