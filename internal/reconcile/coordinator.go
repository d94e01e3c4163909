// Package reconcile derives order state from payment state.
package reconcile

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
)

// OrderTransitioner is satisfied by orders.Service.
type OrderTransitioner interface {
	TransitionStatus(ctx context.Context, id string, from, to orders.Status) (orders.Order, error)
	TransitionPaymentStatus(ctx context.Context, id string, from, to orders.PaymentStatus) (orders.Order, error)
}

// Coordinator applies the order side of a payment status change:
//
//	payment completed: payment_status pending->completed, status pending->paid
//	payment failed:    payment_status pending->failed, status unchanged
//
// Every write is guarded on the predecessor state. A stale guard means the
// change is already applied (or overtaken) and is logged, not returned, so
// duplicate and late notifications are harmless. The two writes are attempted
// independently; a redelivery after a partial failure finishes the job.
type Coordinator struct {
	Orders   OrderTransitioner
	Log      *logging.Logger
	Outcomes *metrics.Outcomes
}

var _ payments.Notifier = (*Coordinator)(nil)

func (c *Coordinator) PaymentStatusChanged(ctx context.Context, p payments.Payment) error {
	switch p.Status {
	case payments.StatusCompleted:
		errPay := c.apply(ctx, p, "payment_status", func() error {
			_, err := c.Orders.TransitionPaymentStatus(ctx, p.OrderID, orders.PaymentPending, orders.PaymentCompleted)
			return err
		})
		errStatus := c.apply(ctx, p, "status", func() error {
			_, err := c.Orders.TransitionStatus(ctx, p.OrderID, orders.StatusPending, orders.StatusPaid)
			return err
		})
		return errors.Join(errPay, errStatus)
	case payments.StatusFailed:
		return c.apply(ctx, p, "payment_status", func() error {
			_, err := c.Orders.TransitionPaymentStatus(ctx, p.OrderID, orders.PaymentPending, orders.PaymentFailed)
			return err
		})
	default:
		return nil
	}
}

func (c *Coordinator) apply(ctx context.Context, p payments.Payment, field string, transition func() error) error {
	fields := logging.Fields{
		OrderID:   p.OrderID,
		PaymentID: p.ID,
		Step:      "reconcile_" + field,
	}
	err := transition()
	switch {
	case err == nil:
		fields.Status = "applied"
		c.Outcomes.Inc("applied")
		c.Log.Log(fields)
		return nil
	case errors.Is(err, orders.ErrStaleTransition):
		fields.Status = "stale"
		c.Outcomes.Inc("stale")
		c.Log.Err(fields, err)
		return nil
	default:
		fields.Status = "error"
		c.Outcomes.Inc("error")
		c.Log.Err(fields, err)
		return err
	}
}
