package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/address"
	"github.com/ariefcatur/go-realtime-checkout/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/google/uuid"
)

// CartDrainer is the part of the cart the checkout consumes.
type CartDrainer interface {
	ReadAndClear(ctx context.Context, userID string) ([]cart.Line, error)
	Restore(ctx context.Context, userID string, lines []cart.Line) error
}

type CheckoutInput struct {
	UserID            string
	ShippingAddressID string
	PaymentMethod     PaymentMethod
	// IdempotencyKey is optional. A repeated key for the same user returns
	// the order it created first.
	IdempotencyKey string
}

type CheckoutResult struct {
	Order    Order
	Replayed bool
}

// Factory turns a user's cart into a pending Order.
//
// The cart is drained first and prices are resolved from the drained lines,
// so an order never contains a line that is still in the cart. Any failure
// after the drain merges the lines back before the error is returned.
type Factory struct {
	Cart      CartDrainer
	Catalog   catalog.Catalog
	Addresses address.Book
	Store     Store
	Cache     Cache // optional
	Events    *Emitter
	Log       *logging.Logger
	Outcomes  *metrics.Outcomes
	NewID     func() string
}

const restoreTimeout = 5 * time.Second

func (f *Factory) Checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	start := time.Now()
	res, err := f.checkout(ctx, in)

	outcome := checkoutOutcome(res, err)
	f.Outcomes.Inc(outcome)
	fields := logging.Fields{
		UserID:     in.UserID,
		OrderID:    res.Order.ID,
		Step:       "checkout",
		Status:     outcome,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		f.Log.Err(fields, err)
	} else {
		f.Log.Log(fields)
	}
	return res, err
}

func (f *Factory) checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.ShippingAddressID) == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id and shipping address are required", ErrInvalidInput)
	}
	if !in.PaymentMethod.Valid() {
		return CheckoutResult{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, in.PaymentMethod)
	}

	if in.IdempotencyKey != "" {
		o, ok, err := f.replay(ctx, in)
		if err != nil {
			return CheckoutResult{}, err
		}
		if ok {
			return CheckoutResult{Order: o, Replayed: true}, nil
		}
	}

	owned, err := f.Addresses.BelongsTo(ctx, in.ShippingAddressID, in.UserID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !owned {
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrInvalidAddress, in.ShippingAddressID)
	}

	lines, err := f.Cart.ReadAndClear(ctx, in.UserID)
	if err != nil {
		// a concurrent request with the same key may have drained the cart
		if errors.Is(err, cart.ErrEmptyCart) && in.IdempotencyKey != "" {
			if o, ok, rerr := f.replay(ctx, in); rerr == nil && ok {
				return CheckoutResult{Order: o, Replayed: true}, nil
			}
		}
		return CheckoutResult{}, err
	}

	o, err := f.build(ctx, in, lines)
	if err == nil {
		err = f.Store.Create(ctx, o)
	}
	if err != nil {
		if rerr := f.restore(ctx, in.UserID, lines); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			if existing, ok, rerr := f.replay(ctx, in); rerr == nil && ok {
				return CheckoutResult{Order: existing, Replayed: true}, nil
			}
		}
		return CheckoutResult{}, err
	}

	if stored, gerr := f.Store.Get(ctx, o.ID); gerr == nil {
		o = stored
	}
	f.remember(ctx, o)
	f.Events.Emit(TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:        o.ID,
		IdempotencyKey: o.IdempotencyKey,
		UserID:         o.UserID,
		PaymentMethod:  o.PaymentMethod,
		Items:          o.Items,
		TotalCents:     o.TotalCents,
	})
	return CheckoutResult{Order: o}, nil
}

// build prices every drained line at the current catalog price.
func (f *Factory) build(ctx context.Context, in CheckoutInput, lines []cart.Line) (Order, error) {
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		p, err := catalog.Resolve(ctx, f.Catalog, l.ProductID)
		if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrInactive) {
			return Order{}, fmt.Errorf("%w: %s: %v", ErrProductUnavailable, l.ProductID, err)
		}
		if err != nil {
			return Order{}, err
		}
		items = append(items, Item{
			ProductID:      l.ProductID,
			ProductName:    p.Name,
			Qty:            l.Quantity,
			UnitPriceCents: p.PriceCents,
		})
	}

	id := uuid.NewString()
	if f.NewID != nil {
		id = f.NewID()
	}
	now := time.Now().UTC()
	return Order{
		ID:                id,
		UserID:            in.UserID,
		IdempotencyKey:    in.IdempotencyKey,
		ShippingAddressID: in.ShippingAddressID,
		PaymentMethod:     in.PaymentMethod,
		Status:            StatusPending,
		PaymentStatus:     PaymentPending,
		Items:             items,
		TotalCents:        totalOf(items),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// restore runs even when ctx is already cancelled.
func (f *Factory) restore(ctx context.Context, userID string, lines []cart.Line) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	if err := f.Cart.Restore(ctx, userID, lines); err != nil {
		f.Log.Err(logging.Fields{UserID: userID, Step: "checkout_restore", Status: "failed"}, err)
		return fmt.Errorf("restore cart: %w", err)
	}
	return nil
}

func (f *Factory) replay(ctx context.Context, in CheckoutInput) (Order, bool, error) {
	if f.Cache != nil {
		if id, err := f.Cache.LookupIdempotency(ctx, in.UserID, in.IdempotencyKey); err == nil {
			if o, err := f.Store.Get(ctx, id); err == nil && o.UserID == in.UserID {
				return o, true, nil
			}
		}
	}
	o, err := f.Store.GetByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
	if errors.Is(err, ErrNotFound) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, err
	}
	f.remember(ctx, o)
	return o, true, nil
}

func (f *Factory) remember(ctx context.Context, o Order) {
	if f.Cache == nil || o.IdempotencyKey == "" {
		return
	}
	if err := f.Cache.RememberIdempotency(ctx, o.UserID, o.IdempotencyKey, o.ID); err != nil {
		f.Log.Err(logging.Fields{OrderID: o.ID, Step: "idempotency_cache", Status: "failed"}, err)
	}
}

func checkoutOutcome(res CheckoutResult, err error) string {
	switch {
	case err == nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "created"
	case errors.Is(err, cart.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidPaymentMethod):
		return "invalid"
	case errors.Is(err, storage.ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}
