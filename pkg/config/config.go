// Package config handles Kvasir configuration via YAML files and
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (KVASIR_*)
//  2. Config file (kvasir.yaml)
//  3. Built-in defaults
//
// Example usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment variables (all use the KVASIR_ prefix):
//
// Planner:
//   - KVASIR_QUERY_COST_PLANNER=true
//
// Caches:
//   - KVASIR_QUERY_PLAN_CACHE_TTL=60
//   - KVASIR_QUERY_CACHE_SIZE=1024
//   - KVASIR_PLAN_CACHE_SIZE=1024
//
// Logging:
//   - KVASIR_LOG_LEVEL="info"
//   - KVASIR_LOG_FORMAT="text"
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Kvasir configuration.
type Config struct {
	Planner PlannerConfig `yaml:"planner"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// PlannerConfig selects and tunes the plan generation strategy.
type PlannerConfig struct {
	// CostPlanner switches from the rule-based planner to cost-based
	// search over pattern orderings (KVASIR_QUERY_COST_PLANNER).
	CostPlanner bool `yaml:"query_cost_planner"`
}

// CacheConfig sizes the two compilation caches.
type CacheConfig struct {
	// PlanTTLSeconds is how long a generated plan stays trusted before
	// it is regenerated on next access (KVASIR_QUERY_PLAN_CACHE_TTL).
	PlanTTLSeconds int `yaml:"query_plan_cache_ttl"`
	// QueryCacheSize bounds the parsed-query cache (KVASIR_QUERY_CACHE_SIZE).
	QueryCacheSize int `yaml:"query_cache_size"`
	// PlanCacheSize bounds the plan cache (KVASIR_PLAN_CACHE_SIZE).
	PlanCacheSize int `yaml:"plan_cache_size"`
}

// PlanTTL returns the staleness window as a duration.
func (c CacheConfig) PlanTTL() time.Duration {
	return time.Duration(c.PlanTTLSeconds) * time.Second
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (KVASIR_LOG_LEVEL).
	Level string `yaml:"level"`
	// Format is "text" or "json" (KVASIR_LOG_FORMAT).
	Format string `yaml:"format"`
}

// LoadDefaults returns the built-in defaults.
func LoadDefaults() *Config {
	return &Config{
		Planner: PlannerConfig{
			CostPlanner: true,
		},
		Cache: CacheConfig{
			PlanTTLSeconds: 60,
			QueryCacheSize: 1024,
			PlanCacheSize:  1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv returns defaults overridden by KVASIR_* environment
// variables.
func LoadFromEnv() *Config {
	cfg := LoadDefaults()
	applyEnvVars(cfg)
	return cfg
}

// LoadFromFile reads a YAML config file, then applies environment
// overrides on top. An empty path skips the file step.
func LoadFromFile(path string) (*Config, error) {
	cfg := LoadDefaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvVars(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile returns the first config file that exists, checking
// KVASIR_CONFIG, then ./kvasir.yaml, then ./config.yaml. Empty string if
// nothing is found.
func FindConfigFile() string {
	if path := os.Getenv("KVASIR_CONFIG"); path != "" {
		return path
	}
	for _, candidate := range []string{"kvasir.yaml", "config.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Cache.PlanTTLSeconds <= 0 {
		return fmt.Errorf("query_plan_cache_ttl must be positive, got %d", c.Cache.PlanTTLSeconds)
	}
	if c.Cache.QueryCacheSize <= 0 {
		return fmt.Errorf("query_cache_size must be positive, got %d", c.Cache.QueryCacheSize)
	}
	if c.Cache.PlanCacheSize <= 0 {
		return fmt.Errorf("plan_cache_size must be positive, got %d", c.Cache.PlanCacheSize)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

func applyEnvVars(cfg *Config) {
	cfg.Planner.CostPlanner = getEnvBool("KVASIR_QUERY_COST_PLANNER", cfg.Planner.CostPlanner)
	cfg.Cache.PlanTTLSeconds = getEnvInt("KVASIR_QUERY_PLAN_CACHE_TTL", cfg.Cache.PlanTTLSeconds)
	cfg.Cache.QueryCacheSize = getEnvInt("KVASIR_QUERY_CACHE_SIZE", cfg.Cache.QueryCacheSize)
	cfg.Cache.PlanCacheSize = getEnvInt("KVASIR_PLAN_CACHE_SIZE", cfg.Cache.PlanCacheSize)
	cfg.Logging.Level = getEnv("KVASIR_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("KVASIR_LOG_FORMAT", cfg.Logging.Format)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
