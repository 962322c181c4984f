// Package cachemanager caches expensive derived values, most importantly
// prepared per-sample kinematics, which depend only on the event files and
// the chain set and are reused across likelihood evaluations and watch
// reloads.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is the storage interface behind the read-through cache.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K)
	Flush(ctx context.Context)
}
