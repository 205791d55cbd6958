// Package cache provides an optional Redis-backed cache for product records.
//
// Product records are immutable for practical purposes within a trading day,
// so they are stored under a fixed TTL keyed by product id. The cache is a
// nil-safe optional dependency: a nil *Store behaves as a permanent miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/tradeline/degiro-go/pkg/webapi"
)

// Prometheus metrics for the product cache.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_cache_hits_total",
		Help: "Total product cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "degiro_cache_misses_total",
		Help: "Total product cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "degiro_cache_errors_total",
		Help: "Total product cache errors by operation",
	}, []string{"operation"})
)

// ErrCacheMiss indicates the requested product is not in the cache.
var ErrCacheMiss = errors.New("cache miss")

// DefaultTTL is how long a product record stays cached.
const DefaultTTL = 1 * time.Hour

const keyPrefix = "degiro:products:"

// Store caches product records in Redis.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a product cache on the given Redis client. A ttl of 0 selects
// DefaultTTL.
func New(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: redisClient, ttl: ttl}
}

// Get retrieves a cached product record.
// Returns ErrCacheMiss if the product is not cached; a nil Store always
// misses.
func (s *Store) Get(ctx context.Context, productID string) (*webapi.ProductInfo, error) {
	if s == nil {
		return nil, ErrCacheMiss
	}

	data, err := s.redis.Get(ctx, keyPrefix+productID).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var info webapi.ProductInfo
	if err := json.Unmarshal(data, &info); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("decode cached product %s: %w", productID, err)
	}

	cacheHits.Inc()
	return &info, nil
}

// GetMany retrieves the cached subset of the given product ids.
// Missing or unreadable entries are simply absent from the result.
func (s *Store) GetMany(ctx context.Context, productIDs []string) map[string]webapi.ProductInfo {
	if s == nil || len(productIDs) == 0 {
		return nil
	}

	out := make(map[string]webapi.ProductInfo)
	for _, id := range productIDs {
		info, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out[id] = *info
	}
	return out
}

// Set caches a product record under the store's TTL. A nil Store is a no-op.
func (s *Store) Set(ctx context.Context, info webapi.ProductInfo) error {
	if s == nil {
		return nil
	}

	data, err := json.Marshal(info)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode product %s: %w", info.ID, err)
	}
	if err := s.redis.Set(ctx, keyPrefix+info.ID, data, s.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a product record. A nil Store is a no-op.
func (s *Store) Delete(ctx context.Context, productID string) error {
	if s == nil {
		return nil
	}
	if err := s.redis.Del(ctx, keyPrefix+productID).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
