package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestClaim_OnlyFirstWins(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()
	key := DedupKey("reconciler", "evt-1")

	ok, err := Claim(ctx, rdb, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Claim(ctx, rdb, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Release(ctx, rdb, key))
	ok, err = Claim(ctx, rdb, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	exists, err := Exists(ctx, rdb, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "idem:checkout:u1:k1", IdemCheckoutKey("u1", "k1"))
	assert.Equal(t, "order:o1", OrderKey("o1"))
	assert.Equal(t, "dedup:svc:e1", DedupKey("svc", "e1"))
	assert.Equal(t, "cart:u1", CartKey("u1"))
	assert.Equal(t, "order:o1:gen", GenerationKey(OrderKey("o1")))
}

func TestSetFenced_SkipsAfterInvalidate(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()
	key := OrderKey("o1")

	gen, err := Generation(ctx, rdb, key)
	require.NoError(t, err)
	assert.Equal(t, "0", gen)

	ok, err := SetFenced(ctx, rdb, key, gen, []byte("v1"), TTLOrderCache)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, TTLOrderCache, mr.TTL(key))

	require.NoError(t, Invalidate(ctx, rdb, key))
	assert.False(t, mr.Exists(key))
	assert.Equal(t, TTLGeneration, mr.TTL(GenerationKey(key)))

	ok, err = SetFenced(ctx, rdb, key, gen, []byte("stale"), TTLOrderCache)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))

	gen, err = Generation(ctx, rdb, key)
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
	ok, err = SetFenced(ctx, rdb, key, gen, []byte("v2"), TTLOrderCache)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}
