package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file.
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads the config file (optional, may be empty) and then applies
// overrides from the environment and the given .env files
func LoadWithEnv(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = Parse(data, isYAML(path)); err != nil {
			return nil, err
		}
	} else {
		cfg.RetryEnabled = DefaultRetryEnabled
		applyDefaults(cfg)
	}

	ApplyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadEnvFiles loads each .env file in turn; with no files it loads ./.env.
// A missing file is skipped, an unreadable or malformed one is an error.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

// Parse decodes config data and applies defaults without validating
func Parse(data []byte, asYAML bool) (*Config, error) {
	cfg := &Config{}
	raw := map[string]interface{}{}

	if asYAML {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// bool zero value is false, so an absent retryEnabled takes the default
	if _, ok := raw["retryEnabled"]; !ok {
		cfg.RetryEnabled = DefaultRetryEnabled
	}

	applyDefaults(cfg)
	return cfg, nil
}

// ApplyEnv overrides config values from environment variables.
// B24_WEBHOOK_URL adds a main endpoint when none is configured.
func ApplyEnv(cfg *Config) {
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	webhook := os.Getenv(EnvWebhookURL)
	token := os.Getenv(EnvAuthToken)
	if webhook != "" && len(cfg.Endpoints) == 0 {
		cfg.Endpoints = append(cfg.Endpoints, EndpointConfig{
			Name:   DefaultEndpointName,
			URL:    webhook,
			Weight: DefaultEndpointWeight,
			Role:   DefaultEndpointRole,
		})
	}
	if token != "" {
		for i := range cfg.Endpoints {
			if cfg.Endpoints[i].AuthToken == "" {
				cfg.Endpoints[i].AuthToken = token
			}
		}
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}

	if cfg.Cache != nil {
		if cfg.Cache.TTL == 0 {
			cfg.Cache.TTL = DefaultCacheTTL
		}
		if cfg.Cache.Size == 0 {
			cfg.Cache.Size = DefaultCacheSize
		}
	}

	if b := cfg.Batching; b != nil {
		if b.MaxSize == 0 {
			b.MaxSize = DefaultMaxBatchSize
		}
		if b.MaxWait == 0 {
			b.MaxWait = DefaultBatchingMaxWait
		}
	}

	if cb := cfg.CircuitBreaker; cb != nil {
		if cb.FailureThreshold == 0 {
			cb.FailureThreshold = DefaultFailureThreshold
		}
		if cb.RecoveryTimeout == 0 {
			cb.RecoveryTimeout = DefaultRecoveryTimeout
		}
		if cb.HalfOpenMaxRequests == 0 {
			cb.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
		}
	}

	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Weight == 0 {
			cfg.Endpoints[i].Weight = DefaultEndpointWeight
		}
		if cfg.Endpoints[i].Role == "" {
			cfg.Endpoints[i].Role = DefaultEndpointRole
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	names := make(map[string]bool)
	for i, ep := range cfg.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint[%d]: name is required", i)
		}
		if names[ep.Name] {
			return fmt.Errorf("endpoint[%d]: duplicate endpoint name '%s'", i, ep.Name)
		}
		names[ep.Name] = true

		if ep.URL == "" {
			return fmt.Errorf("endpoint '%s': url is required", ep.Name)
		}
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint '%s': url must be an absolute http(s) URL", ep.Name)
		}

		if ep.Weight <= 0 {
			return fmt.Errorf("endpoint '%s': weight must be positive", ep.Name)
		}

		if ep.Role != RoleMain && ep.Role != RoleFallback {
			return fmt.Errorf("endpoint '%s': role must be 'main' or 'fallback'", ep.Name)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.MaxBatchSize < 1 || cfg.MaxBatchSize > DefaultMaxBatchSize {
		return fmt.Errorf("maxBatchSize must be between 1 and %d", DefaultMaxBatchSize)
	}

	if cfg.BatchConcurrency < 1 {
		return fmt.Errorf("batchConcurrency must be positive")
	}

	if cfg.RetryMaxAttempts < 0 {
		return fmt.Errorf("retryMaxAttempts must be non-negative")
	}

	if cfg.RetryBackoff < 0 {
		return fmt.Errorf("retryBackoff must be non-negative")
	}

	if cfg.StatsLogInterval < 0 {
		return fmt.Errorf("statsLogInterval must be non-negative")
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive when cache is enabled")
		}
	}

	if b := cfg.Batching; b != nil && b.Enabled {
		if b.MaxSize < 1 || b.MaxSize > DefaultMaxBatchSize {
			return fmt.Errorf("batching.maxSize must be between 1 and %d", DefaultMaxBatchSize)
		}
		if b.MaxWait < 0 {
			return fmt.Errorf("batching.maxWait must be non-negative")
		}
	}

	if cb := cfg.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.FailureThreshold <= 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be positive")
		}
		if cb.RecoveryTimeout <= 0 {
			return fmt.Errorf("circuitBreaker.recoveryTimeout must be positive")
		}
	}

	return nil
}
