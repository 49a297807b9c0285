package config

import "time"

// Role defines the endpoint role type
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// Config represents the main configuration structure
type Config struct {
	LogLevel         string                `json:"logLevel" yaml:"logLevel"`
	RequestTimeout   int                   `json:"requestTimeout" yaml:"requestTimeout"` // ms - per network call
	MaxBatchSize     int                   `json:"maxBatchSize" yaml:"maxBatchSize"`
	BatchConcurrency int                   `json:"batchConcurrency" yaml:"batchConcurrency"`
	RetryEnabled     bool                  `json:"retryEnabled" yaml:"retryEnabled"`
	RetryMaxAttempts int                   `json:"retryMaxAttempts" yaml:"retryMaxAttempts"`
	RetryBackoff     int                   `json:"retryBackoff" yaml:"retryBackoff"`         // ms - base delay between attempts
	StatsLogInterval int                   `json:"statsLogInterval" yaml:"statsLogInterval"` // ms - 0 disables endpoint statistics logging
	CircuitBreaker   *CircuitBreakerConfig `json:"circuitBreaker,omitempty" yaml:"circuitBreaker,omitempty"`
	Cache            *CacheConfig          `json:"cache,omitempty" yaml:"cache,omitempty"`
	Batching         *BatchingConfig       `json:"batching,omitempty" yaml:"batching,omitempty"`
	Endpoints        []EndpointConfig      `json:"endpoints" yaml:"endpoints"`
}

// CacheConfig represents reply cache configuration
type CacheConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	TTL             int      `json:"ttl" yaml:"ttl"`                         // seconds
	Size            int      `json:"size" yaml:"size"`                       // number of entries
	DisabledMethods []string `json:"disabledMethods" yaml:"disabledMethods"` // methods to exclude from caching
}

// BatchingConfig represents coalescing of concurrent standalone calls into batch calls
type BatchingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	MaxSize int  `json:"maxSize" yaml:"maxSize"` // commands per coalesced batch
	MaxWait int  `json:"maxWait" yaml:"maxWait"` // ms - how long the first call waits for company
}

// CircuitBreakerConfig represents per endpoint circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	FailureThreshold    int  `json:"failureThreshold" yaml:"failureThreshold"`
	RecoveryTimeout     int  `json:"recoveryTimeout" yaml:"recoveryTimeout"` // ms
	HalfOpenMaxRequests int  `json:"halfOpenMaxRequests" yaml:"halfOpenMaxRequests"`
}

// EndpointConfig represents a single REST endpoint: an incoming webhook URL
// (https://portal/rest/<user>/<secret>/) or a REST base URL with an OAuth token
type EndpointConfig struct {
	Name      string `json:"name" yaml:"name"`
	URL       string `json:"url" yaml:"url"`
	AuthToken string `json:"authToken" yaml:"authToken"`
	Weight    int    `json:"weight" yaml:"weight"`
	Role      Role   `json:"role" yaml:"role"`
}

// Default values
const (
	DefaultLogLevel            = "info"
	DefaultRequestTimeout      = 30000 // ms
	DefaultMaxBatchSize        = 50
	DefaultBatchConcurrency    = 1
	DefaultRetryEnabled        = true
	DefaultRetryMaxAttempts    = 3
	DefaultRetryBackoff        = 500 // ms
	DefaultEndpointWeight      = 1
	DefaultEndpointRole        = RoleMain
	DefaultEndpointName        = "default"
	DefaultCacheTTL            = 300 // seconds
	DefaultCacheSize           = 1000
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30000 // ms
	DefaultHalfOpenMaxRequests = 2
	DefaultBatchingMaxWait     = 10 // ms
)

// Environment variables read by ApplyEnv
const (
	EnvWebhookURL = "B24_WEBHOOK_URL"
	EnvAuthToken  = "B24_AUTH_TOKEN"
	EnvLogLevel   = "B24_LOG_LEVEL"
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetStatsLogIntervalDuration returns the statistics log interval as time.Duration
func (c *Config) GetStatsLogIntervalDuration() time.Duration {
	return time.Duration(c.StatsLogInterval) * time.Millisecond
}

// GetRetryBackoffDuration returns the base retry delay as time.Duration
func (c *Config) GetRetryBackoffDuration() time.Duration {
	return time.Duration(c.RetryBackoff) * time.Millisecond
}

// IsCacheEnabled returns true if cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// IsCircuitBreakerEnabled returns true if the circuit breaker is configured and enabled
func (c *Config) IsCircuitBreakerEnabled() bool {
	return c.CircuitBreaker != nil && c.CircuitBreaker.Enabled
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// IsBatchingEnabled returns true if call coalescing is configured and enabled
func (c *Config) IsBatchingEnabled() bool {
	return c.Batching != nil && c.Batching.Enabled
}

// GetMaxWaitDuration returns the coalescing window as time.Duration
func (c *BatchingConfig) GetMaxWaitDuration() time.Duration {
	return time.Duration(c.MaxWait) * time.Millisecond
}

// GetRecoveryTimeoutDuration returns the open state duration as time.Duration
func (c *CircuitBreakerConfig) GetRecoveryTimeoutDuration() time.Duration {
	return time.Duration(c.RecoveryTimeout) * time.Millisecond
}
