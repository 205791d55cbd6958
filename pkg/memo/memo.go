// Package memo provides a time-windowed memoization primitive.
//
// Cached values are keyed by the caller's key plus a coarse time bucket
// derived from elapsed time since first use. Once time advances into a new
// bucket, entries of prior buckets simply stop being addressed; memory is
// bounded by the LRU capacity, not by elapsed time. The same mechanism backs
// the login lockout guard (see LockoutGuard).
package memo

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds the cache when no capacity is given.
const DefaultMaxEntries = 128

// bucketKey is the composite cache key: the caller key qualified by the
// time bucket active at lookup time.
type bucketKey[K comparable] struct {
	bucket int64
	key    K
}

// Cache memoizes computed values for the duration of a time bucket.
//
// A window of 0 means a single eternal bucket: values are cached until
// evicted by capacity. Concurrent calls for the same key within one bucket
// collapse to a single execution of the compute function.
type Cache[K comparable, V any] struct {
	window  time.Duration
	entries *lru.Cache[bucketKey[K], V]
	group   singleflight.Group

	mu    sync.Mutex
	epoch time.Time
	now   func() time.Time
}

// New creates a memoization cache holding up to maxEntries values across all
// buckets, expiring values when the bucket of length window advances.
func New[K comparable, V any](maxEntries int, window time.Duration) *Cache[K, V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[bucketKey[K], V](maxEntries)
	if err != nil {
		// Only reachable with a non-positive size, which is normalized above.
		panic(err)
	}
	return &Cache[K, V]{
		window:  window,
		entries: entries,
		now:     time.Now,
	}
}

// Do returns the cached value for key in the current time bucket, computing
// and caching it via fn on a miss. Errors are returned to every collapsed
// caller and never cached.
func (c *Cache[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, error) {
	bucket := c.bucket()
	bk := bucketKey[K]{bucket: bucket, key: key}

	if v, ok := c.entries.Get(bk); ok {
		return v, nil
	}

	sfKey := fmt.Sprintf("%d\x00%v", bucket, key)
	v, err, _ := c.group.Do(sfKey, func() (any, error) {
		// A collapsed caller may arrive after the winner stored the value.
		if v, ok := c.entries.Get(bk); ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(bk, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// bucket returns the current time-bucket index. The epoch is fixed on first
// use, so the first bucket always starts at the first call.
func (c *Cache[K, V]) bucket() int64 {
	if c.window <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.epoch.IsZero() {
		c.epoch = now
	}
	return int64(now.Sub(c.epoch) / c.window)
}

// Len returns the number of live entries, including entries of lapsed
// buckets not yet evicted by capacity.
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

// Memoize wraps a single-argument function with a time-windowed cache.
// A window of 0 caches forever, bounded by maxEntries.
func Memoize[K comparable, V any](
	fn func(context.Context, K) (V, error),
	maxEntries int,
	window time.Duration,
) func(context.Context, K) (V, error) {
	c := New[K, V](maxEntries, window)
	return func(ctx context.Context, key K) (V, error) {
		return c.Do(ctx, key, func(ctx context.Context) (V, error) {
			return fn(ctx, key)
		})
	}
}
