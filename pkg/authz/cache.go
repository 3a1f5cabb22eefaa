package authz

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// DecisionCache is an optional read-through cache in front of the
// evaluator. Entries are keyed by the full query and expire on a short
// TTL; mutations that change a principal's effective permissions call
// InvalidatePrincipal so the staleness window stays bounded by the TTL
// only for changes the caller cannot attribute to a principal.
type DecisionCache interface {
	Get(ctx context.Context, key string) (allowed bool, ok bool)
	Set(ctx context.Context, key string, principal Principal, allowed bool)
	InvalidatePrincipal(ctx context.Context, principal Principal)
	Close() error
}

// LRUDecisionCache caches decisions in-process with a bounded expirable
// LRU. Suitable for single-instance deployments; a multi-instance
// deployment should prefer the Redis backend so invalidation reaches
// every instance.
type LRUDecisionCache struct {
	lru     *expirable.LRU[string, bool]
	metrics *observability.Metrics
}

// NewLRUDecisionCache creates an in-process decision cache holding at
// most size entries, each expiring after ttl.
func NewLRUDecisionCache(size int, ttl time.Duration, metrics *observability.Metrics) *LRUDecisionCache {
	return &LRUDecisionCache{
		lru:     expirable.NewLRU[string, bool](size, nil, ttl),
		metrics: metrics,
	}
}

func (c *LRUDecisionCache) Get(ctx context.Context, key string) (bool, bool) {
	allowed, ok := c.lru.Get(key)
	c.observe(ok, "lru")
	return allowed, ok
}

func (c *LRUDecisionCache) Set(ctx context.Context, key string, _ Principal, allowed bool) {
	c.lru.Add(key, allowed)
}

func (c *LRUDecisionCache) InvalidatePrincipal(ctx context.Context, principal Principal) {
	prefix := principal.String() + "|"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

func (c *LRUDecisionCache) Close() error { return nil }

func (c *LRUDecisionCache) observe(hit bool, backend string) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.DecisionCacheHitsTotal.WithLabelValues(backend).Inc()
	} else {
		c.metrics.DecisionCacheMissesTotal.WithLabelValues(backend).Inc()
	}
}

const redisDecisionPrefix = "gatehouse:decision:"

// RedisDecisionCache caches decisions in Redis so a fleet of instances
// shares one decision set and one invalidation stream.
type RedisDecisionCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewRedisDecisionCache creates a Redis-backed decision cache. The
// client is owned by the cache and closed with it.
func NewRedisDecisionCache(client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *observability.Logger) *RedisDecisionCache {
	return &RedisDecisionCache{client: client, ttl: ttl, metrics: metrics, logger: logger}
}

func (c *RedisDecisionCache) Get(ctx context.Context, key string) (bool, bool) {
	val, err := c.client.Get(ctx, redisDecisionPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("decision cache read failed")
		}
		c.observe(false)
		return false, false
	}
	c.observe(true)
	return val == "1", true
}

func (c *RedisDecisionCache) Set(ctx context.Context, key string, _ Principal, allowed bool) {
	val := "0"
	if allowed {
		val = "1"
	}
	if err := c.client.Set(ctx, redisDecisionPrefix+key, val, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("decision cache write failed")
	}
}

// InvalidatePrincipal scans for the principal's keys and deletes them.
// The key space per principal is small (one entry per distinct query),
// so the SCAN stays cheap.
func (c *RedisDecisionCache) InvalidatePrincipal(ctx context.Context, principal Principal) {
	pattern := redisDecisionPrefix + principal.String() + "|*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.WithError(err).Warn("decision cache invalidation failed")
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("decision cache scan failed")
	}
}

func (c *RedisDecisionCache) Close() error {
	return c.client.Close()
}

func (c *RedisDecisionCache) observe(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.DecisionCacheHitsTotal.WithLabelValues("redis").Inc()
	} else {
		c.metrics.DecisionCacheMissesTotal.WithLabelValues("redis").Inc()
	}
}
