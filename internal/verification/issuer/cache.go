package issuer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"credtrust/internal/verification/metrics"
	"credtrust/pkg/platform/sentinel"
)

// Cache stores recent lookup results. Get returns sentinel.ErrNotFound on a
// miss or an expired entry.
type Cache interface {
	Get(ctx context.Context, issuer, credentialID string) (LookupResult, error)
	Set(ctx context.Context, result LookupResult) error
}

type cachedResult struct {
	result   LookupResult
	storedAt time.Time
}

// InMemoryCache provides an in-memory cache for lookup results with TTL expiration.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cachedResult
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryCache creates a new in-memory cache with the specified TTL.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cachedResult),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *InMemoryCache) Get(_ context.Context, issuer, credentialID string) (LookupResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.entries[cacheKey(issuer, credentialID)]; ok {
		if c.now().Sub(cached.storedAt) < c.ttl {
			return cached.result, nil
		}
	}
	return LookupResult{}, sentinel.ErrNotFound
}

func (c *InMemoryCache) Set(_ context.Context, result LookupResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(result.Issuer, result.CredentialID)] = cachedResult{result: result, storedAt: c.now()}
	return nil
}

// RedisCache stores lookup results in Redis with a key TTL.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewRedisCache wraps client. Metrics may be nil.
func NewRedisCache(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, metrics: m}
}

func (c *RedisCache) Get(ctx context.Context, issuer, credentialID string) (LookupResult, error) {
	raw, err := c.client.Get(ctx, cacheKey(issuer, credentialID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return LookupResult{}, sentinel.ErrNotFound
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("redis get issuer lookup: %w", err)
	}
	var result LookupResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return LookupResult{}, fmt.Errorf("decode cached issuer lookup: %w", err)
	}
	return result, nil
}

func (c *RedisCache) Set(ctx context.Context, result LookupResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode issuer lookup: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(result.Issuer, result.CredentialID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set issuer lookup: %w", err)
	}
	return nil
}

// CachedRegistry serves lookups from cache and falls through to the wrapped
// registry on a miss. Cache errors never fail a lookup.
type CachedRegistry struct {
	next    Registry
	cache   Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCachedRegistry decorates next with cache. Logger and metrics may be nil.
func NewCachedRegistry(next Registry, cache Cache, logger *slog.Logger, m *metrics.Metrics) *CachedRegistry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CachedRegistry{next: next, cache: cache, logger: logger, metrics: m}
}

func (r *CachedRegistry) Lookup(ctx context.Context, issuer, credentialID string) (LookupResult, error) {
	cached, err := r.cache.Get(ctx, issuer, credentialID)
	if err == nil {
		r.metrics.IncCacheHit()
		cached.Source = SourceCache
		return cached, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		r.logger.WarnContext(ctx, "issuer cache read failed", "issuer", issuer, "error", err)
	}
	r.metrics.IncCacheMiss()

	result, err := r.next.Lookup(ctx, issuer, credentialID)
	if err != nil {
		return LookupResult{}, err
	}
	if err := r.cache.Set(ctx, result); err != nil {
		r.logger.WarnContext(ctx, "issuer cache write failed", "issuer", issuer, "error", err)
	}
	return result, nil
}
