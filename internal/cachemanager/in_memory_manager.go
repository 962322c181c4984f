package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/pwfit/internal/log"
)

const DefaultExpiration = 30 * time.Minute
const DefaultCleanupInterval = 60 * time.Minute

// InMemoryCacheManager backs CacheManager with patrickmn/go-cache.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

// NewInMemoryCacheManager initializes the cache; useCase tags log lines.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get retrieves an item from the cache by its key.
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(string(key))
	if !found {
		return zeroValue, false
	}
	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "use_case", c.useCase, "key", string(key))
		return zeroValue, false
	}
	log.Debug(log.CatCache, "cache hit", "use_case", c.useCase, "key", string(key))
	return v, true
}

// Set stores a value under key with the given TTL.
func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Delete removes the given keys.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
}

// Flush drops every cached entry.
func (c *InMemoryCacheManager[K, V]) Flush(_ context.Context) {
	c.cache.Flush()
}
