package resilience

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// defaultCacheSize bounds the number of cached call results.
	defaultCacheSize = 100
	// defaultCacheTTL is how long a cached result stays servable.
	defaultCacheTTL = time.Hour
)

// Caller wraps external calls with retry, a per-service circuit
// breaker, and a TTL-bounded result cache. Successful results are
// cached under a normalized call signature; failed calls are never
// cached, so the next identical call retries the backend. The breaker
// is keyed by the signature's service part, so a run of failures
// against one provider fails fast without touching the others.
type Caller struct {
	retry    RetryConfig
	cache    *expirable.LRU[string, any]
	breakers *breakerSet
}

// CallerOption configures a Caller.
type CallerOption func(*callerOptions)

type callerOptions struct {
	retry     RetryConfig
	circuit   CircuitConfig
	cacheSize int
	cacheTTL  time.Duration
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) CallerOption {
	return func(o *callerOptions) { o.retry = cfg }
}

// WithCache overrides the cache capacity and entry TTL.
func WithCache(size int, ttl time.Duration) CallerOption {
	return func(o *callerOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithCircuitConfig overrides the per-service breaker policy.
func WithCircuitConfig(cfg CircuitConfig) CallerOption {
	return func(o *callerOptions) { o.circuit = cfg }
}

// NewCaller creates a Caller with retry and breaker defaults and an
// hour-long, 100-entry result cache.
func NewCaller(opts ...CallerOption) *Caller {
	o := callerOptions{
		retry:     DefaultRetryConfig(),
		circuit:   DefaultCircuitConfig(),
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Caller{
		retry:    o.retry,
		cache:    expirable.NewLRU[string, any](o.cacheSize, nil, o.cacheTTL),
		breakers: newBreakerSet(o.circuit),
	}
}

// Signature builds a normalized cache key from the call's identifying parts
// (service, operation, arguments). Parts are lowercased and inner whitespace
// is collapsed, so trivially different spellings of the same call share an
// entry.
func Signature(parts ...string) string {
	norm := make([]string, 0, len(parts))
	for _, p := range parts {
		norm = append(norm, strings.Join(strings.Fields(strings.ToLower(p)), " "))
	}
	return strings.Join(norm, "|")
}

// serviceOf extracts the service part of a signature for breaker
// keying. Unkeyed calls share one breaker.
func serviceOf(signature string) string {
	if i := strings.IndexByte(signature, '|'); i >= 0 {
		return signature[:i]
	}
	if signature == "" {
		return "default"
	}
	return signature
}

// Call executes fn under the retry policy, serving and populating the result
// cache by signature. An empty signature bypasses the cache entirely. When
// the service's breaker is open the call fails fast with ErrCircuitOpen
// without invoking fn; one call counts as one breaker outcome regardless of
// how many retry attempts it took.
func (c *Caller) Call(ctx context.Context, signature string, fn func(ctx context.Context) (any, error)) (any, error) {
	if signature != "" {
		if v, ok := c.cache.Get(signature); ok {
			zap.L().Debug("cache hit", zap.String("signature", signature))
			return v, nil
		}
	}

	breaker := c.breakers.get(serviceOf(signature))
	if err := breaker.Allow(); err != nil {
		return nil, err
	}

	v, err := DoVal(ctx, c.retry, fn)
	breaker.Record(err)
	if err != nil {
		return nil, err
	}

	if signature != "" {
		c.cache.Add(signature, v)
	}
	return v, nil
}

// BreakerStates snapshots the breaker position per service.
func (c *Caller) BreakerStates() map[string]CircuitState {
	return c.breakers.States()
}

// CallAs is like Caller.Call but returns a typed result. A cached value of
// the wrong type is treated as an error rather than silently recomputed.
func CallAs[T any](ctx context.Context, c *Caller, signature string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Call(ctx, signature, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, eris.Errorf("resilience: cached value for %q has unexpected type %T", signature, v)
	}
	return typed, nil
}

// Purge drops all cached results.
func (c *Caller) Purge() {
	c.cache.Purge()
}

// CacheLen returns the number of live cache entries.
func (c *Caller) CacheLen() int {
	return c.cache.Len()
}
