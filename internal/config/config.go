// Package config handles loading and validating the verdance.yaml
// configuration. The core runs with zero config (sensible defaults); the file
// only overrides what it names.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/quota"
	"github.com/verdance/verdance/platform/internal/rank"
	"github.com/verdance/verdance/platform/internal/ratelimit"
	"github.com/verdance/verdance/platform/internal/recommend"
)

// Config represents the top-level verdance.yaml configuration.
type Config struct {
	Log       LogConfig             `yaml:"log"`
	Cache     CacheConfig           `yaml:"cache"`
	Results   ResultsConfig         `yaml:"results"`
	Limits    quota.Limits          `yaml:"limits"`  // overlaid onto quota.DefaultLimits
	Weights   rank.Weights          `yaml:"weights"` // overlaid onto rank.DefaultWeights
	RateLimit RateLimitConfig       `yaml:"ratelimit"`
	Breaker   catalog.BreakerConfig `yaml:"breaker"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `yaml:"format"` // "json" or "text"
	Level  string `yaml:"level"`
}

// CacheConfig holds the call-site TTL policy.
type CacheConfig struct {
	AllTiers        bool          `yaml:"all_tiers"` // cache results for paid tiers too
	MaxEntries      int           `yaml:"max_entries"`
	UserTTL         time.Duration `yaml:"user_ttl"`
	CatalogTTL      time.Duration `yaml:"catalog_ttl"`
	ResultTTL       time.Duration `yaml:"result_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// ResultsConfig holds default page sizes.
type ResultsConfig struct {
	MaxResults  int `yaml:"max_results"`
	MaxProducts int `yaml:"max_products"`
	MaxKits     int `yaml:"max_kits"`
}

// RateLimitConfig configures per-tier burst limiting.
type RateLimitConfig struct {
	Enabled bool                                         `yaml:"enabled"`
	Tiers   map[domain.SubscriptionTier]ratelimit.Config `yaml:"tiers"` // overlaid onto ratelimit.DefaultTierConfigs
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	rc := recommend.DefaultConfig()
	return &Config{
		Log: LogConfig{Format: "json", Level: "info"},
		Cache: CacheConfig{
			MaxEntries:      rc.MaxEntries,
			UserTTL:         rc.UserTTL,
			CatalogTTL:      rc.CatalogTTL,
			ResultTTL:       rc.ResultTTL,
			JanitorInterval: time.Minute,
		},
		Results: ResultsConfig{
			MaxResults:  rc.MaxResults,
			MaxProducts: rc.MaxProducts,
			MaxKits:     rc.MaxKits,
		},
		RateLimit: RateLimitConfig{Enabled: true},
		Breaker:   catalog.DefaultBreakerConfig(),
	}
}

// Load parses a verdance.yaml file over the defaults and validates it.
// If path is empty, returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// ResolvePath finds the config file path.
// Priority: VERDANCE_CONFIG env var > ./verdance.yaml > "" (no config).
func ResolvePath() string {
	if p := os.Getenv("VERDANCE_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("verdance.yaml"); err == nil {
		return "verdance.yaml"
	}
	return ""
}

// QuotaLimits returns the configured limits overlaid onto the defaults.
func (c *Config) QuotaLimits() quota.Limits {
	return quota.DefaultLimits().Merge(c.Limits)
}

// RateLimitTiers returns the per-tier limiter configs overlaid onto the
// defaults. Nil when rate limiting is disabled.
func (c *Config) RateLimitTiers() map[domain.SubscriptionTier]ratelimit.Config {
	if !c.RateLimit.Enabled {
		return nil
	}
	tiers := ratelimit.DefaultTierConfigs()
	for tier, rl := range c.RateLimit.Tiers {
		tiers[tier] = rl
	}
	return tiers
}

// Recommend returns the orchestrator settings.
func (c *Config) Recommend() recommend.Config {
	rc := recommend.DefaultConfig()
	rc.UserTTL = c.Cache.UserTTL
	rc.CatalogTTL = c.Cache.CatalogTTL
	rc.ResultTTL = c.Cache.ResultTTL
	rc.CacheAllTiers = c.Cache.AllTiers
	rc.MaxEntries = c.Cache.MaxEntries
	rc.MaxResults = c.Results.MaxResults
	rc.MaxProducts = c.Results.MaxProducts
	rc.MaxKits = c.Results.MaxKits
	return rc
}

// validate checks that every section is internally consistent.
func (c *Config) validate() error {
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format %q: must be json or text", c.Log.Format)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	for name, ttl := range map[string]time.Duration{
		"user_ttl":    c.Cache.UserTTL,
		"catalog_ttl": c.Cache.CatalogTTL,
		"result_ttl":  c.Cache.ResultTTL,
	} {
		if ttl < 0 {
			return fmt.Errorf("cache.%s must not be negative", name)
		}
	}
	if c.Results.MaxResults < 0 || c.Results.MaxProducts < 0 || c.Results.MaxKits < 0 {
		return fmt.Errorf("results: limits must not be negative")
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	for tier, rl := range c.RateLimit.Tiers {
		if !domain.ValidTier(string(tier)) {
			return fmt.Errorf("ratelimit.tiers: unknown tier %q", tier)
		}
		if rl.RequestsPerSecond < 0 || rl.Burst < 0 {
			return fmt.Errorf("ratelimit.tiers.%s: rate and burst must not be negative", tier)
		}
	}
	return nil
}
