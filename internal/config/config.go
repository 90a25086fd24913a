package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	API      APIConfig         `mapstructure:"api"`
	Source   SourceConfig      `mapstructure:"source"`
	Fallback FallbackConfig    `mapstructure:"fallback"`
	Symbols  []string          `mapstructure:"symbols"`
	Aliases  map[string]string `mapstructure:"aliases"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Persist  PersistConfig     `mapstructure:"persist"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	APIKey   string `mapstructure:"api_key"`
	PageSize int    `mapstructure:"page_size"`
}

// APIConfig describes the upstream pattern-detection API.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst     int           `mapstructure:"burst"`
}

type SourceConfig struct {
	Type string `mapstructure:"type"` // "api" or "static"
}

type FallbackConfig struct {
	Dir string `mapstructure:"dir"`
}

// CacheConfig holds TTLs and maintenance schedules.
type CacheConfig struct {
	CandlesTTL      time.Duration `mapstructure:"candles_ttl"`
	PatternsTTL     time.Duration `mapstructure:"patterns_ttl"`
	BrowseTTL       time.Duration `mapstructure:"browse_ttl"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	WarmSchedule    string        `mapstructure:"warm_schedule"`
}

// PersistConfig selects the backend for the persisted pattern list.
type PersistConfig struct {
	Type  string      `mapstructure:"type"` // "none", "localfs", "s3" or "redis"
	Path  string      `mapstructure:"path"` // For localfs
	S3    S3Config    `mapstructure:"s3"`
	Redis RedisConfig `mapstructure:"redis"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DefaultSymbols are browsed when no symbol list is configured.
var DefaultSymbols = []string{"RELIANCE", "BAJAJ-AUTO", "TCS", "ICICIBANK", "BHARTIARTL"}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			PageSize: 10,
		},
		API: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 10 * time.Second,
			Burst:   5,
		},
		Source:   SourceConfig{Type: "api"},
		Fallback: FallbackConfig{Dir: "data"},
		Symbols:  append([]string(nil), DefaultSymbols...),
		Aliases:  map[string]string{},
		Cache: CacheConfig{
			CandlesTTL:      5 * time.Minute,
			PatternsTTL:     10 * time.Minute,
			BrowseTTL:       10 * time.Minute,
			CleanupSchedule: "@every 1m",
		},
		Persist: PersistConfig{
			Type: "none",
			Path: "cache",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()

	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.page_size", d.Server.PageSize)
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.rate_limit", d.API.RateLimit)
	v.SetDefault("api.burst", d.API.Burst)
	v.SetDefault("source.type", d.Source.Type)
	v.SetDefault("fallback.dir", d.Fallback.Dir)
	v.SetDefault("symbols", d.Symbols)
	v.SetDefault("cache.candles_ttl", d.Cache.CandlesTTL)
	v.SetDefault("cache.patterns_ttl", d.Cache.PatternsTTL)
	v.SetDefault("cache.browse_ttl", d.Cache.BrowseTTL)
	v.SetDefault("cache.cleanup_schedule", d.Cache.CleanupSchedule)
	v.SetDefault("cache.warm_schedule", d.Cache.WarmSchedule)
	v.SetDefault("persist.type", d.Persist.Type)
	v.SetDefault("persist.path", d.Persist.Path)
	v.SetDefault("persist.s3.region", "us-east-1")
	v.SetDefault("persist.redis.addr", "localhost:6379")
	v.SetDefault("persist.redis.prefix", "candlescope")
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	// Support environment variable overrides, e.g. API_BASE_URL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

// Load reads configuration from file. An empty path yields defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}

	return &cfg, nil
}

// Watch reloads the file at path whenever it changes and hands the result to
// onChange. The first read happens synchronously; a failure there is returned.
// The watching viper instance only detects changes: each reload decodes with a
// fresh instance, since placeholder expansion sets overrides that would
// otherwise mask later edits.
func Watch(path string, onChange func(*Config, error)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(reload(path))
	})
	v.WatchConfig()

	return nil
}

// reload reads and validates path from scratch.
func reload(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.PageSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("page_size must be positive, got %d", c.Server.PageSize))
	}

	// Upstream validation
	switch c.Source.Type {
	case "api":
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("api base_url must be an absolute URL, got %q", c.API.BaseURL))
		}
	case "static":
		if c.Fallback.Dir == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("fallback dir required when source type is static"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown source type %q", c.Source.Type))
	}
	if c.API.RateLimit < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rate_limit cannot be negative, got %f", c.API.RateLimit))
	}

	if len(c.Symbols) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("at least one symbol required"))
	}

	// Cache validation
	if c.Cache.CandlesTTL <= 0 || c.Cache.PatternsTTL <= 0 || c.Cache.BrowseTTL <= 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("cache ttls must be positive"))
	}

	// Persistence validation - if a backend is chosen, check its config exists
	switch c.Persist.Type {
	case "", "none":
	case "localfs":
		if c.Persist.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("persist path required when type is localfs"))
		}
	case "s3":
		if c.Persist.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when persist type is s3"))
		}
	case "redis":
		if c.Persist.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("redis addr required when persist type is redis"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown persist type %q", c.Persist.Type))
	}

	return nil
}
