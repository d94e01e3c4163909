package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
)

// MaxAdvanceAttempts bounds the re-read and retry loop of Advance.
const MaxAdvanceAttempts = 3

// Service is the only writer of order status fields outside checkout. It
// keeps the read cache coherent and publishes a change event per transition.
type Service struct {
	Store  Store
	Cache  Cache // optional
	Events *Emitter
	Log    *logging.Logger
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	if strings.TrimSpace(id) == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	gen := ""
	if s.Cache != nil {
		if o, err := s.Cache.GetOrder(ctx, id); err == nil {
			return o, nil
		} else if !errors.Is(err, ErrCacheMiss) {
			s.Log.Err(logging.Fields{OrderID: id, Step: "order_cache_get"}, err)
		}
		var err error
		if gen, err = s.Cache.OrderGeneration(ctx, id); err != nil {
			s.Log.Err(logging.Fields{OrderID: id, Step: "order_cache_generation"}, err)
			gen = ""
		}
	}
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if gen != "" {
		if err := s.Cache.SetOrder(ctx, o, gen); err != nil {
			s.Log.Err(logging.Fields{OrderID: id, Step: "order_cache_set"}, err)
		}
	}
	return o, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.Store.ListByUser(ctx, userID)
}

func (s *Service) TransitionStatus(ctx context.Context, id string, from, to Status) (Order, error) {
	o, err := s.Store.TransitionStatus(ctx, id, from, to)
	if err != nil {
		return Order{}, err
	}
	s.changed(ctx, o, "status", string(from), string(to))
	return o, nil
}

func (s *Service) TransitionPaymentStatus(ctx context.Context, id string, from, to PaymentStatus) (Order, error) {
	o, err := s.Store.TransitionPaymentStatus(ctx, id, from, to)
	if err != nil {
		return Order{}, err
	}
	s.changed(ctx, o, "payment_status", string(from), string(to))
	return o, nil
}

// Advance moves the order to `to` from whatever status it has now. A lost
// race re-reads and retries, at most MaxAdvanceAttempts times, and never
// skips the legality check.
func (s *Service) Advance(ctx context.Context, id string, to Status) (Order, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAdvanceAttempts; attempt++ {
		cur, err := s.Store.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}
		o, err := s.TransitionStatus(ctx, id, cur.Status, to)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrStaleTransition) {
			return Order{}, err
		}
		lastErr = err
	}
	return Order{}, lastErr
}

func (s *Service) changed(ctx context.Context, o Order, field, from, to string) {
	if s.Cache != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		if err := s.Cache.InvalidateOrder(ctx, o.ID); err != nil {
			s.Log.Err(logging.Fields{OrderID: o.ID, Step: "order_cache_invalidate"}, err)
		}
		cancel()
	}
	s.Events.Emit(TopicOrderStatusChanged, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID,
		Field:   field,
		From:    from,
		To:      to,
	})
}
