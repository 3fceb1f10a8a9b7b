// Package config loads the gateway configuration from defaults, an optional
// YAML file and ASTRO_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/astro-gateway/pkg/client"
	"github.com/Sternrassler/astro-gateway/pkg/logging"
	"github.com/Sternrassler/astro-gateway/pkg/ratelimit"
)

// EnvPrefix prefixes every environment override, e.g. ASTRO_REDIS_ADDR.
const EnvPrefix = "ASTRO"

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig configures the coordination store and shared cache.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CatalogConfig configures the relational catalog.
type CatalogConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// UpstreamConfig configures the HTTP upstreams.
type UpstreamConfig struct {
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`

	Breaker BreakerConfig `mapstructure:"breaker"`
	Search  SearchConfig  `mapstructure:"search"`
	Feeds   FeedsConfig   `mapstructure:"feeds"`
}

// BreakerConfig configures the per-upstream circuit breakers.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// SearchConfig configures the search upstreams.
type SearchConfig struct {
	BaseURL string `mapstructure:"base_url"`

	// SecondaryBaseURL defaults to BaseURL.
	SecondaryBaseURL string        `mapstructure:"secondary_base_url"`
	PrimaryPath      string        `mapstructure:"primary_path"`
	SecondaryPath    string        `mapstructure:"secondary_path"`
	MaxCacheTTL      time.Duration `mapstructure:"max_cache_ttl"`
}

// FeedsConfig configures the event feed upstream.
type FeedsConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	Paths          map[string]string `mapstructure:"paths"`
	SnapshotTTL    time.Duration     `mapstructure:"snapshot_ttl"`
	MaxConcurrency int               `mapstructure:"max_concurrency"`
	MaxPages       int               `mapstructure:"max_pages"`
}

// PolicyConfig is the quota of one limit type.
type PolicyConfig struct {
	Limit       int           `mapstructure:"limit"`
	Window      time.Duration `mapstructure:"window"`
	BurstLimit  int           `mapstructure:"burst_limit"`
	BurstWindow time.Duration `mapstructure:"burst_window"`
}

// RateLimitConfig configures client identification and quotas.
type RateLimitConfig struct {
	Browse PolicyConfig `mapstructure:"browse"`
	Search PolicyConfig `mapstructure:"search"`
	Feed   PolicyConfig `mapstructure:"feed"`

	FallbackCapacity int `mapstructure:"fallback_capacity"`

	TrustProviderHeader bool   `mapstructure:"trust_provider_header"`
	ProviderHeader      string `mapstructure:"provider_header"`
	TrustPeerAddress    bool   `mapstructure:"trust_peer_address"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads the configuration. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("catalog.driver", "sqlite")
	v.SetDefault("catalog.dsn", "file:catalog.db")

	retry := client.DefaultOptions()
	v.SetDefault("upstream.user_agent", "astro-gateway/1.0")
	v.SetDefault("upstream.timeout", retry.Timeout)
	v.SetDefault("upstream.max_attempts", retry.MaxAttempts)
	v.SetDefault("upstream.base_delay", retry.BaseDelay)
	v.SetDefault("upstream.max_delay", retry.MaxDelay)

	v.SetDefault("upstream.breaker.enabled", true)
	v.SetDefault("upstream.breaker.consecutive_failures", 5)
	v.SetDefault("upstream.breaker.open_timeout", 30*time.Second)

	v.SetDefault("upstream.search.base_url", "https://ssd-api.jpl.nasa.gov")
	v.SetDefault("upstream.search.secondary_base_url", "")
	v.SetDefault("upstream.search.primary_path", "/sbdb_query.api")
	v.SetDefault("upstream.search.secondary_path", "/sbdb.api")
	v.SetDefault("upstream.search.max_cache_ttl", time.Hour)

	v.SetDefault("upstream.feeds.base_url", "https://ssd-api.jpl.nasa.gov")
	v.SetDefault("upstream.feeds.paths", map[string]string{
		"fireballs":  "/fireball.api",
		"approaches": "/cad.api",
	})
	v.SetDefault("upstream.feeds.snapshot_ttl", 30*time.Second)
	v.SetDefault("upstream.feeds.max_concurrency", 4)
	v.SetDefault("upstream.feeds.max_pages", 50)

	for lt, p := range ratelimit.DefaultPolicies() {
		prefix := "ratelimit." + string(lt)
		v.SetDefault(prefix+".limit", p.Limit)
		v.SetDefault(prefix+".window", p.Window)
		v.SetDefault(prefix+".burst_limit", p.BurstLimit)
		v.SetDefault(prefix+".burst_window", p.BurstWindow)
	}
	v.SetDefault("ratelimit.fallback_capacity", ratelimit.DefaultFallbackCapacity)
	v.SetDefault("ratelimit.trust_provider_header", false)
	v.SetDefault("ratelimit.provider_header", "CF-Connecting-IP")
	v.SetDefault("ratelimit.trust_peer_address", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Catalog.DSN == "" {
		errs = append(errs, errors.New("catalog.dsn is required"))
	}

	u := c.Upstream
	if u.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	if u.MaxAttempts < 1 {
		errs = append(errs, errors.New("upstream.max_attempts must be at least 1"))
	}
	if u.BaseDelay <= 0 {
		errs = append(errs, errors.New("upstream.base_delay must be positive"))
	}
	for key, raw := range map[string]string{
		"upstream.search.base_url": u.Search.BaseURL,
		"upstream.feeds.base_url":  u.Feeds.BaseURL,
	} {
		if err := validateURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if u.Search.SecondaryBaseURL != "" {
		if err := validateURL(u.Search.SecondaryBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("upstream.search.secondary_base_url: %w", err))
		}
	}
	if len(u.Feeds.Paths) == 0 {
		errs = append(errs, errors.New("upstream.feeds.paths must name at least one feed"))
	}

	for lt, p := range map[string]PolicyConfig{
		"browse": c.RateLimit.Browse,
		"search": c.RateLimit.Search,
		"feed":   c.RateLimit.Feed,
	} {
		if err := p.validate(); err != nil {
			errs = append(errs, fmt.Errorf("ratelimit.%s: %w", lt, err))
		}
	}
	if c.RateLimit.FallbackCapacity <= 0 {
		errs = append(errs, errors.New("ratelimit.fallback_capacity must be positive"))
	}
	if c.RateLimit.TrustProviderHeader && c.RateLimit.ProviderHeader == "" {
		errs = append(errs, errors.New("ratelimit.provider_header is required when trusted"))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (p PolicyConfig) validate() error {
	switch {
	case p.Limit < ratelimit.MinLimit:
		return fmt.Errorf("limit must be at least %d", ratelimit.MinLimit)
	case p.Window <= 0:
		return errors.New("window must be positive")
	case p.BurstLimit < 0:
		return errors.New("burst_limit must not be negative")
	case p.BurstLimit > 0 && p.BurstLimit < ratelimit.MinLimit:
		return fmt.Errorf("burst_limit must be zero or at least %d", ratelimit.MinLimit)
	case p.BurstLimit > 0 && (p.BurstWindow <= 0 || p.BurstWindow >= p.Window):
		return errors.New("burst_window must be positive and shorter than window")
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid url %q", raw)
	}
	return nil
}

// Policies returns the rate limit quotas per limit type.
func (c RateLimitConfig) Policies() map[ratelimit.LimitType]ratelimit.Policy {
	policy := func(p PolicyConfig) ratelimit.Policy {
		return ratelimit.Policy{
			Limit:       p.Limit,
			Window:      p.Window,
			BurstLimit:  p.BurstLimit,
			BurstWindow: p.BurstWindow,
		}
	}
	return map[ratelimit.LimitType]ratelimit.Policy{
		ratelimit.LimitBrowse: policy(c.Browse),
		ratelimit.LimitSearch: policy(c.Search),
		ratelimit.LimitFeed:   policy(c.Feed),
	}
}

// Identity returns the client identification settings.
func (c RateLimitConfig) Identity() ratelimit.IdentityConfig {
	return ratelimit.IdentityConfig{
		TrustProviderHeader: c.TrustProviderHeader,
		ProviderHeader:      c.ProviderHeader,
		TrustPeerAddress:    c.TrustPeerAddress,
	}
}

// ClientConfig returns the upstream client configuration for one upstream.
func (u UpstreamConfig) ClientConfig(name, baseURL string) client.Config {
	cfg := client.DefaultConfig(name, baseURL)
	cfg.UserAgent = u.UserAgent
	cfg.Retry = client.Options{
		Timeout:     u.Timeout,
		MaxAttempts: u.MaxAttempts,
		BaseDelay:   u.BaseDelay,
		MaxDelay:    u.MaxDelay,
	}
	cfg.Breaker = client.BreakerConfig{
		Enabled:             u.Breaker.Enabled,
		ConsecutiveFailures: u.Breaker.ConsecutiveFailures,
		OpenTimeout:         u.Breaker.OpenTimeout,
	}
	return cfg
}

// Options returns the zerolog setup configuration.
func (l LoggingConfig) Options() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(l.Level)
	cfg.Pretty = l.Pretty
	return cfg
}
