package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache is a read-side shortcut. The Store stays the source of truth and a
// cache failure never fails the calling operation.
type Cache interface {
	GetOrder(ctx context.Context, id string) (Order, error)
	// OrderGeneration must be taken before the order is read from the Store
	// and handed back to SetOrder.
	OrderGeneration(ctx context.Context, id string) (string, error)
	// SetOrder is a no-op when the order was invalidated since gen.
	SetOrder(ctx context.Context, o Order, gen string) error
	InvalidateOrder(ctx context.Context, id string) error
	// LookupIdempotency returns the order id remembered for (user, key).
	LookupIdempotency(ctx context.Context, userID, key string) (string, error)
	RememberIdempotency(ctx context.Context, userID, key, orderID string) error
}

type RedisCache struct{ RDB *redis.Client }

func (c *RedisCache) GetOrder(ctx context.Context, id string) (Order, error) {
	b, err := c.RDB.Get(ctx, redisx.OrderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Order{}, ErrCacheMiss
	}
	if err != nil {
		return Order{}, fmt.Errorf("redis get order: %w", err)
	}
	var o Order
	if err := json.Unmarshal(b, &o); err != nil {
		return Order{}, fmt.Errorf("decode cached order: %w", err)
	}
	return o, nil
}

func (c *RedisCache) OrderGeneration(ctx context.Context, id string) (string, error) {
	return redisx.Generation(ctx, c.RDB, redisx.OrderKey(id))
}

func (c *RedisCache) SetOrder(ctx context.Context, o Order, gen string) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	_, err = redisx.SetFenced(ctx, c.RDB, redisx.OrderKey(o.ID), gen, b, redisx.TTLOrderCache)
	return err
}

func (c *RedisCache) InvalidateOrder(ctx context.Context, id string) error {
	return redisx.Invalidate(ctx, c.RDB, redisx.OrderKey(id))
}

func (c *RedisCache) LookupIdempotency(ctx context.Context, userID, key string) (string, error) {
	id, err := c.RDB.Get(ctx, redisx.IdemCheckoutKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return id, err
}

func (c *RedisCache) RememberIdempotency(ctx context.Context, userID, key, orderID string) error {
	return c.RDB.Set(ctx, redisx.IdemCheckoutKey(userID, key), orderID, redisx.TTLIdempotency).Err()
}
