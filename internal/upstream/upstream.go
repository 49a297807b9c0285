package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"b24gofer/internal/config"
)

const formContentType = "application/x-www-form-urlencoded"

// Upstream represents a single REST endpoint of a portal
type Upstream struct {
	name      string
	baseURL   string
	authToken string
	weight    int
	role      Role

	httpClient *http.Client
	status     *Status
	breaker    *CircuitBreaker
	logger     zerolog.Logger
}

// Config for creating a new Upstream
type Config struct {
	Name           string
	URL            string
	AuthToken      string
	Weight         int
	Role           Role
	RequestTimeout time.Duration
	CircuitBreaker CircuitBreakerConfig
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// NewUpstream creates a new Upstream instance
func NewUpstream(cfg Config) *Upstream {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		}
		httpClient = &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		}
	}

	weight := cfg.Weight
	if weight <= 0 {
		weight = 1
	}
	role := cfg.Role
	if role == "" {
		role = RoleMain
	}

	return &Upstream{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		authToken:  cfg.AuthToken,
		weight:     weight,
		role:       role,
		httpClient: httpClient,
		status:     NewStatus(),
		breaker:    NewCircuitBreaker(cfg.CircuitBreaker),
		logger:     cfg.Logger.With().Str("upstream", cfg.Name).Logger(),
	}
}

// NewUpstreamFromConfig creates an Upstream from config
func NewUpstreamFromConfig(cfg config.EndpointConfig, globalCfg *config.Config, logger zerolog.Logger) *Upstream {
	return NewUpstream(Config{
		Name:           cfg.Name,
		URL:            cfg.URL,
		AuthToken:      cfg.AuthToken,
		Weight:         cfg.Weight,
		Role:           RoleFromConfig(cfg.Role),
		RequestTimeout: globalCfg.GetRequestTimeoutDuration(),
		CircuitBreaker: CircuitBreakerConfigFrom(globalCfg.CircuitBreaker),
		Logger:         logger,
	})
}

// Name returns the upstream name
func (u *Upstream) Name() string {
	return u.name
}

// URL returns the REST base URL without the trailing slash
func (u *Upstream) URL() string {
	return u.baseURL
}

// Weight returns the weight for load balancing
func (u *Upstream) Weight() int {
	return u.weight
}

// Role returns the upstream role
func (u *Upstream) Role() Role {
	return u.role
}

// IsMain returns true if this is a main upstream
func (u *Upstream) IsMain() bool {
	return u.role == RoleMain
}

// IsFallback returns true if this is a fallback upstream
func (u *Upstream) IsFallback() bool {
	return u.role == RoleFallback
}

// IsHealthy reports whether the upstream may take requests.
// An open circuit breaker makes it unavailable until the recovery timeout passes.
func (u *Upstream) IsHealthy() bool {
	return u.status.IsHealthy() && u.breaker.AllowRequest()
}

// SetHealthy sets the health status
func (u *Upstream) SetHealthy(healthy bool) {
	u.status.SetHealthy(healthy)
}

// BreakerState returns the circuit breaker state
func (u *Upstream) BreakerState() BreakerState {
	return u.breaker.State()
}

// Status returns the upstream counters
func (u *Upstream) Status() *Status {
	return u.status
}

// SwapRequestCount returns the current request count and resets it to zero
func (u *Upstream) SwapRequestCount() uint64 {
	return u.status.SwapRequestCount()
}

// SwapBatchCount returns the current batch count and resets it to zero
func (u *Upstream) SwapBatchCount() uint64 {
	return u.status.SwapBatchCount()
}

// MethodURL returns the URL a method is posted to: <base>/<method>.json
func (u *Upstream) MethodURL(method string) string {
	return u.baseURL + "/" + method + ".json"
}

// Execute posts a form encoded body to the method URL and returns the raw reply.
// A reply carrying a provider error envelope is returned as *APIError, any other
// non-200 reply as *HTTPError.
func (u *Upstream) Execute(ctx context.Context, method string, form string) (json.RawMessage, error) {
	if u.authToken != "" {
		if form != "" {
			form += "&"
		}
		form += "auth=" + url.QueryEscape(u.authToken)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.MethodURL(method), bytes.NewReader([]byte(form)))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", formContentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		u.recordFailure()
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	u.status.IncrementRequestCount()
	if method == "batch" {
		u.status.IncrementBatchCount()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		u.recordFailure()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if apiErr := parseAPIError(resp.StatusCode, body); apiErr != nil {
		if apiErr.IsRetryable() {
			u.recordFailure()
		} else {
			// the endpoint answered; the call itself was rejected
			u.recordSuccess()
		}
		return nil, apiErr
	}

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
		if httpErr.IsRetryable() {
			u.recordFailure()
		} else {
			u.recordSuccess()
		}
		return nil, httpErr
	}

	u.recordSuccess()
	return json.RawMessage(body), nil
}

func (u *Upstream) recordSuccess() {
	if u.breaker.RecordSuccess() {
		u.logger.Info().Msg("circuit breaker closed")
	}
}

func (u *Upstream) recordFailure() {
	u.status.RecordFailure()
	if u.breaker.RecordFailure() {
		u.logger.Warn().
			Uint64("failures", u.status.GetFailureCount()).
			Msg("circuit breaker open")
	}
}

// parseAPIError extracts the provider error envelope; nil when the body is not one
func parseAPIError(statusCode int, body []byte) *APIError {
	var envelope struct {
		Error       json.RawMessage `json:"error"`
		Description string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return nil
	}

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err != nil || code == "" {
		return nil
	}

	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: envelope.Description,
	}
}

// Close releases idle connections and takes the upstream out of rotation
func (u *Upstream) Close() {
	u.SetHealthy(false)
	u.httpClient.CloseIdleConnections()
}
