package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Claim sets key if absent. It reports false when another caller already
// holds it.
func Claim(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

// Release drops a claim so the work can be retried.
func Release(ctx context.Context, rdb *redis.Client, key string) error {
	return rdb.Del(ctx, key).Err()
}

// Read-through caches fence their fills with a generation counter: a reader
// takes the generation before loading from the store and SetFenced stores the
// value only if no Invalidate ran in between. A reader holding a pre-write
// row can then never overwrite the invalidation that followed the write.

var setFenced = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Generation returns the current invalidation counter of key, "0" if unset.
func Generation(ctx context.Context, rdb *redis.Client, key string) (string, error) {
	gen, err := rdb.Get(ctx, GenerationKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// SetFenced stores value under key unless the generation moved past gen. It
// reports whether the value was written.
func SetFenced(ctx context.Context, rdb *redis.Client, key, gen string, value []byte, ttl time.Duration) (bool, error) {
	n, err := setFenced.Run(ctx, rdb, []string{key, GenerationKey(key)}, gen, value, ttl.Milliseconds()).Int()
	return n == 1, err
}

// Invalidate bumps the generation of key and drops its cached value.
func Invalidate(ctx context.Context, rdb *redis.Client, key string) error {
	_, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, GenerationKey(key))
		p.Expire(ctx, GenerationKey(key), TTLGeneration)
		p.Del(ctx, key)
		return nil
	})
	return err
}
