package orders

import "errors"

var (
	ErrNotFound             = errors.New("order not found")
	ErrInvalidInput         = errors.New("invalid order input")
	ErrInvalidAddress       = errors.New("shipping address does not belong to user")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
	ErrProductUnavailable   = errors.New("product unavailable")

	// ErrStaleTransition: the order is no longer in the expected from-state.
	// Nothing was written.
	ErrStaleTransition = errors.New("stale transition: order state changed")
	// ErrIllegalTransition: from -> to is not an edge of the state machine.
	ErrIllegalTransition = errors.New("illegal order status transition")

	ErrDuplicateIdempotencyKey = errors.New("order for this idempotency key already exists")
)
