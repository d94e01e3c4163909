package orders

import (
	"context"
	"fmt"
)

// Store owns Order aggregates. Status and PaymentStatus change only through
// the guarded transitions, which write nothing unless the current value
// equals from.
type Store interface {
	// Create persists a new order. ErrDuplicateIdempotencyKey if the user
	// already has an order under the same key.
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	TransitionStatus(ctx context.Context, id string, from, to Status) (Order, error)
	TransitionPaymentStatus(ctx context.Context, id string, from, to PaymentStatus) (Order, error)
}

func checkStatusEdge(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

func checkPaymentEdge(from, to PaymentStatus) error {
	if !CanTransitionPayment(from, to) {
		return fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

func staleErr(id string, want, have any) error {
	return fmt.Errorf("%w: order %s is %v, expected %v", ErrStaleTransition, id, have, want)
}
