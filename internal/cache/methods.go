package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"b24gofer/internal/rest"
)

// MethodCacheability defines how a method should be cached
type MethodCacheability int

const (
	// NotCacheable - method should never be cached
	NotCacheable MethodCacheability = iota
	// AlwaysCacheable - method returns reference data that rarely changes
	AlwaysCacheable
	// CacheableFirstPage - cacheable only when no page offset is requested
	CacheableFirstPage
)

// methodCacheRules maps methods to their cacheability rules
var methodCacheRules = map[string]MethodCacheability{
	// portal and application metadata
	"app.info": AlwaysCacheable,
	"methods":  AlwaysCacheable,
	"scope":    AlwaysCacheable,
	"profile":  AlwaysCacheable,

	"user.current": AlwaysCacheable,

	// dictionaries
	"crm.status.list":   CacheableFirstPage,
	"crm.currency.list": CacheableFirstPage,
	"crm.category.list": CacheableFirstPage,
}

// suffixCacheRules apply to every method ending with the suffix
var suffixCacheRules = map[string]MethodCacheability{
	// field descriptions: crm.deal.fields, crm.contact.fields, tasks.task.getfields...
	".fields":         AlwaysCacheable,
	".getfields":      AlwaysCacheable,
	".userfield.list": CacheableFirstPage,
}

// Policy decides which calls may be answered from the cache
type Policy struct {
	disabled map[string]bool
}

// NewPolicy creates a Policy; disabledMethods are never cached
func NewPolicy(disabledMethods []string) *Policy {
	disabled := make(map[string]bool, len(disabledMethods))
	for _, method := range disabledMethods {
		disabled[strings.ToLower(method)] = true
	}
	return &Policy{disabled: disabled}
}

// IsMethodDisabled checks if a method is in the disabled list
func (p *Policy) IsMethodDisabled(method string) bool {
	return p.disabled[strings.ToLower(method)]
}

// IsCacheable checks if a call is cacheable based on method and params
func (p *Policy) IsCacheable(method string, params rest.Params) bool {
	method = strings.ToLower(method)
	if p.disabled[method] {
		return false
	}

	switch ruleFor(method) {
	case AlwaysCacheable:
		return true
	case CacheableFirstPage:
		return isFirstPage(params)
	default:
		return false
	}
}

// ruleFor resolves the rule for a lower-cased method name
func ruleFor(method string) MethodCacheability {
	if rule, ok := methodCacheRules[method]; ok {
		return rule
	}
	for suffix, rule := range suffixCacheRules {
		if strings.HasSuffix(method, suffix) {
			return rule
		}
	}
	return NotCacheable
}

// isFirstPage reports whether params carry no page offset other than zero
func isFirstPage(params rest.Params) bool {
	start, ok := params.Get("start")
	if !ok || start == nil {
		return true
	}
	switch v := start.(type) {
	case int:
		return v == 0
	case int64:
		return v == 0
	case string:
		return v == "" || v == "0"
	default:
		return false
	}
}

// GenerateCacheKey creates a unique cache key for a call.
// Params are hashed in their wire form, so equal calls share a key.
func GenerateCacheKey(scope, method string, params rest.Params) string {
	hash := sha256.Sum256([]byte(rest.EncodeQuery(params)))
	paramsHash := hex.EncodeToString(hash[:8])

	return scope + ":" + strings.ToLower(method) + ":" + paramsHash
}
