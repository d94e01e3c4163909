package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/sony/gobreaker/v2"
)

// Breaker guards a Catalog with a circuit breaker. Only storage failures count
// against the breaker; a missing or inactive product is a normal answer.
type Breaker struct {
	next  Catalog
	price *gobreaker.CircuitBreaker[Product]
	state *gobreaker.CircuitBreaker[bool]
}

func NewBreaker(next Catalog, name string) *Breaker {
	settings := func(suffix string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name + "-" + suffix,
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInactive)
			},
		}
	}
	return &Breaker{
		next:  next,
		price: gobreaker.NewCircuitBreaker[Product](settings("price")),
		state: gobreaker.NewCircuitBreaker[bool](settings("active")),
	}
}

func (b *Breaker) LookupPrice(ctx context.Context, productID string) (Product, error) {
	p, err := b.price.Execute(func() (Product, error) {
		return b.next.LookupPrice(ctx, productID)
	})
	return p, breakerErr(err)
}

func (b *Breaker) IsActive(ctx context.Context, productID string) (bool, error) {
	ok, err := b.state.Execute(func() (bool, error) {
		return b.next.IsActive(ctx, productID)
	})
	return ok, breakerErr(err)
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return storage.Wrap("catalog", fmt.Errorf("circuit open: %w", err))
	}
	return err
}
