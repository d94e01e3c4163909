package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/google/uuid"
)

// OrderReader supplies the total a payment must carry.
type OrderReader interface {
	Get(ctx context.Context, id string) (orders.Order, error)
}

// Notifier is told about every payment whose status a Ledger call created or
// confirmed, re-applies included.
type Notifier interface {
	PaymentStatusChanged(ctx context.Context, p Payment) error
}

type Ledger struct {
	Store    Store
	Orders   OrderReader
	Notifier Notifier // optional
	Events   *orders.Emitter
	Log      *logging.Logger
	NewID    func() string
}

// CreatePayment records the single payment of an order. The amount is the
// order total; cash is confirmed at once, every other method starts pending.
// A cancelled order takes no new payment.
func (l *Ledger) CreatePayment(ctx context.Context, orderID string, method Method, transactionID string) (Payment, error) {
	if strings.TrimSpace(orderID) == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if !method.Valid() {
		return Payment{}, fmt.Errorf("%w: %q", orders.ErrInvalidPaymentMethod, method)
	}
	o, err := l.Orders.Get(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	if o.Status == orders.StatusCancelled {
		return Payment{}, fmt.Errorf("%w: order %s", ErrOrderNotPayable, orderID)
	}

	status := StatusPending
	if method == orders.MethodCash {
		status = StatusCompleted
	}
	id := uuid.NewString()
	if l.NewID != nil {
		id = l.NewID()
	}
	p := Payment{
		ID:            id,
		OrderID:       o.ID,
		AmountCents:   o.TotalCents,
		Method:        method,
		Status:        status,
		TransactionID: transactionID,
	}
	if err := l.Store.Insert(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			return Payment{}, fmt.Errorf("%w: order %s", ErrDuplicatePayment, orderID)
		}
		return Payment{}, err
	}
	if stored, err := l.Store.Get(ctx, p.ID); err == nil {
		p = stored
	}

	l.Log.Log(logging.Fields{OrderID: p.OrderID, PaymentID: p.ID, Step: "payment_created", Status: string(p.Status)})
	l.emit(p)
	return p, l.notify(ctx, p)
}

// UpdatePaymentStatus moves a pending payment to completed or failed.
// Re-applying the status a payment already has succeeds without writing, so
// gateway retries are safe.
func (l *Ledger) UpdatePaymentStatus(ctx context.Context, paymentID string, to Status, transactionID string) (Payment, error) {
	if !to.Terminal() {
		return Payment{}, fmt.Errorf("%w: target status must be completed or failed, got %q", ErrInvalidInput, to)
	}
	p, err := l.Store.Get(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}

	if p.Status == StatusPending {
		updated, err := l.Store.UpdateStatus(ctx, paymentID, StatusPending, to, transactionID)
		switch {
		case err == nil:
			l.Log.Log(logging.Fields{OrderID: updated.OrderID, PaymentID: updated.ID, Step: "payment_updated", Status: string(to)})
			l.emit(updated)
			return updated, l.notify(ctx, updated)
		case errors.Is(err, errStale):
			// lost a race; decide against what the winner wrote
			if p, err = l.Store.Get(ctx, paymentID); err != nil {
				return Payment{}, err
			}
		default:
			return Payment{}, err
		}
	}

	if p.Status != to {
		return Payment{}, fmt.Errorf("%w: payment %s is %s, cannot become %s", ErrIllegalTransition, p.ID, p.Status, to)
	}
	return p, l.notify(ctx, p)
}

func (l *Ledger) Get(ctx context.Context, id string) (Payment, error) {
	return l.Store.Get(ctx, id)
}

func (l *Ledger) notify(ctx context.Context, p Payment) error {
	if l.Notifier == nil {
		return nil
	}
	return l.Notifier.PaymentStatusChanged(ctx, p)
}

func (l *Ledger) emit(p Payment) {
	l.Events.Emit(orders.TopicPaymentStatusChanged, orders.EventPaymentStatusChanged, p.OrderID, orders.PaymentStatusChangedPayload{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		AmountCents:   p.AmountCents,
	})
}
