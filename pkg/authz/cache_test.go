package authz

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

func TestLRUDecisionCache(t *testing.T) {
	cache := NewLRUDecisionCache(16, time.Minute, nil)
	ctx := context.Background()

	alice := UserPrincipal(1)
	bob := UserPrincipal(2)

	aliceKey := cacheKey(Query{Principal: alice, Resource: ResourceEntity, Action: ActionRead, OrgID: 10})
	bobKey := cacheKey(Query{Principal: bob, Resource: ResourceEntity, Action: ActionRead, OrgID: 10})

	_, ok := cache.Get(ctx, aliceKey)
	assert.False(t, ok)

	cache.Set(ctx, aliceKey, alice, true)
	cache.Set(ctx, bobKey, bob, false)

	allowed, ok := cache.Get(ctx, aliceKey)
	require.True(t, ok)
	assert.True(t, allowed)

	allowed, ok = cache.Get(ctx, bobKey)
	require.True(t, ok)
	assert.False(t, allowed)

	// Invalidation is per principal; the other principal's entry stays.
	cache.InvalidatePrincipal(ctx, alice)

	_, ok = cache.Get(ctx, aliceKey)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, bobKey)
	assert.True(t, ok)
}

func TestRedisDecisionCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	cache := NewRedisDecisionCache(client, time.Minute, nil, logger)
	defer cache.Close()

	ctx := context.Background()
	alice := UserPrincipal(1)
	bob := UserPrincipal(2)

	aliceKey := cacheKey(Query{Principal: alice, Resource: ResourceEntity, Action: ActionRead, OrgID: 10})
	bobKey := cacheKey(Query{Principal: bob, Resource: ResourceEntity, Action: ActionRead, OrgID: 10})

	_, ok := cache.Get(ctx, aliceKey)
	assert.False(t, ok)

	cache.Set(ctx, aliceKey, alice, true)
	cache.Set(ctx, bobKey, bob, false)

	allowed, ok := cache.Get(ctx, aliceKey)
	require.True(t, ok)
	assert.True(t, allowed)

	allowed, ok = cache.Get(ctx, bobKey)
	require.True(t, ok)
	assert.False(t, allowed)

	cache.InvalidatePrincipal(ctx, alice)

	_, ok = cache.Get(ctx, aliceKey)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, bobKey)
	assert.True(t, ok)
}

func TestRedisDecisionCacheTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	cache := NewRedisDecisionCache(client, time.Minute, nil, logger)
	defer cache.Close()

	ctx := context.Background()
	alice := UserPrincipal(1)
	key := cacheKey(Query{Principal: alice, Resource: ResourceEntity, Action: ActionRead, OrgID: 10})

	cache.Set(ctx, key, alice, true)

	srv.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}
