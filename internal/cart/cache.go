package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, userID string) (Cart, error)
	// Generation is taken before the cart is read from the Store and passed
	// back to Set, which skips the write if the cart was invalidated since.
	Generation(ctx context.Context, userID string) (string, error)
	Set(ctx context.Context, cart Cart, gen string) error
	Invalidate(ctx context.Context, userID string) error
}

// RedisCache holds cart snapshots for reads only; checkout never reads it.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, baseTTL: redisx.TTLCartCache}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (Cart, error) {
	data, err := r.client.Get(ctx, redisx.CartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{}, ErrCacheMiss
	}
	if err != nil {
		return Cart{}, fmt.Errorf("redis get failed: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return c, nil
}

func (r *RedisCache) Generation(ctx context.Context, userID string) (string, error) {
	gen, err := redisx.Generation(ctx, r.client, redisx.CartKey(userID))
	if err != nil {
		return "", fmt.Errorf("redis generation failed: %w", err)
	}
	return gen, nil
}

func (r *RedisCache) Set(ctx context.Context, c Cart, gen string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	ttl := r.baseTTL + time.Duration(rand.IntN(30))*time.Second
	if _, err := redisx.SetFenced(ctx, r.client, redisx.CartKey(c.UserID), gen, data, ttl); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, userID string) error {
	if err := redisx.Invalidate(ctx, r.client, redisx.CartKey(userID)); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}
