package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	orders *orders.Service
	store  *orders.MemoryStore
	ledger *payments.Ledger
	coord  *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := orders.NewMemoryStore()
	svc := &orders.Service{Store: store}
	coord := &Coordinator{Orders: svc}
	return &harness{
		orders: svc,
		store:  store,
		ledger: &payments.Ledger{Store: payments.NewMemoryStore(), Orders: store, Notifier: coord},
		coord:  coord,
	}
}

func (h *harness) seedOrder(t *testing.T, id string) {
	t.Helper()
	items := []orders.Item{
		{ProductID: "prod-a", ProductName: "A", Qty: 2, UnitPriceCents: 1000},
		{ProductID: "prod-b", ProductName: "B", Qty: 1, UnitPriceCents: 500},
	}
	require.NoError(t, h.store.Create(context.Background(), orders.Order{
		ID: id, UserID: "user-1", ShippingAddressID: "addr1", PaymentMethod: orders.MethodCard,
		Status: orders.StatusPending, PaymentStatus: orders.PaymentPending,
		Items: items, TotalCents: 2500,
	}))
}

func (h *harness) order(t *testing.T, id string) orders.Order {
	t.Helper()
	o, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func TestCardPaymentDrivesOrderToPaid(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "o1")
	ctx := context.Background()

	p, err := h.ledger.CreatePayment(ctx, "o1", orders.MethodCard, "")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPending, p.Status)
	assert.Equal(t, int64(2500), p.AmountCents)
	assert.Equal(t, orders.StatusPending, h.order(t, "o1").Status)

	_, err = h.ledger.UpdatePaymentStatus(ctx, p.ID, payments.StatusCompleted, "txn123")
	require.NoError(t, err)
	o := h.order(t, "o1")
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)

	_, err = h.ledger.UpdatePaymentStatus(ctx, p.ID, payments.StatusCompleted, "txn123")
	require.NoError(t, err)
	assert.Equal(t, o, h.order(t, "o1"))
}

func TestCashPaymentPaysOrderSynchronously(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "o1")

	p, err := h.ledger.CreatePayment(context.Background(), "o1", orders.MethodCash, "")
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCompleted, p.Status)

	o := h.order(t, "o1")
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
}

func TestFailedPaymentLeavesOrderPendingAndBlocksRetry(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "o1")
	ctx := context.Background()

	p, err := h.ledger.CreatePayment(ctx, "o1", orders.MethodCard, "")
	require.NoError(t, err)
	_, err = h.ledger.UpdatePaymentStatus(ctx, p.ID, payments.StatusFailed, "")
	require.NoError(t, err)

	o := h.order(t, "o1")
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentFailed, o.PaymentStatus)

	_, err = h.ledger.CreatePayment(ctx, "o1", orders.MethodCard, "")
	assert.ErrorIs(t, err, payments.ErrDuplicatePayment)
}

func TestDuplicateAndLateNotificationsConverge(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "o1")
	ctx := context.Background()

	completed := payments.Payment{ID: "p1", OrderID: "o1", Status: payments.StatusCompleted}
	require.NoError(t, h.coord.PaymentStatusChanged(ctx, completed))
	want := h.order(t, "o1")

	require.NoError(t, h.coord.PaymentStatusChanged(ctx, completed))
	assert.Equal(t, want, h.order(t, "o1"))

	// older events arriving after the newer one change nothing
	require.NoError(t, h.coord.PaymentStatusChanged(ctx, payments.Payment{ID: "p1", OrderID: "o1", Status: payments.StatusPending}))
	require.NoError(t, h.coord.PaymentStatusChanged(ctx, payments.Payment{ID: "p1", OrderID: "o1", Status: payments.StatusFailed}))
	assert.Equal(t, want, h.order(t, "o1"))
	assert.Equal(t, orders.StatusPaid, want.Status)
}

func TestPaymentAfterCancellationKeepsOrderCancelled(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "o1")
	ctx := context.Background()

	_, err := h.orders.TransitionStatus(ctx, "o1", orders.StatusPending, orders.StatusCancelled)
	require.NoError(t, err)

	require.NoError(t, h.coord.PaymentStatusChanged(ctx, payments.Payment{ID: "p1", OrderID: "o1", Status: payments.StatusCompleted}))
	o := h.order(t, "o1")
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
}

type flakyOrders struct {
	OrderTransitioner
	failStatus int
}

func (f *flakyOrders) TransitionStatus(ctx context.Context, id string, from, to orders.Status) (orders.Order, error) {
	if f.failStatus > 0 {
		f.failStatus--
		return orders.Order{}, errors.New("connection refused")
	}
	return f.OrderTransitioner.TransitionStatus(ctx, id, from, to)
}

func TestRedeliveryAfterPartialFailureConverges(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "o1")
	ctx := context.Background()
	coord := &Coordinator{Orders: &flakyOrders{OrderTransitioner: h.orders, failStatus: 1}}
	completed := payments.Payment{ID: "p1", OrderID: "o1", Status: payments.StatusCompleted}

	require.Error(t, coord.PaymentStatusChanged(ctx, completed))
	o := h.order(t, "o1")
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, orders.StatusPending, o.Status)

	require.NoError(t, coord.PaymentStatusChanged(ctx, completed))
	o = h.order(t, "o1")
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, orders.StatusPaid, o.Status)
}

func TestMissingOrderIsReported(t *testing.T) {
	h := newHarness(t)
	err := h.coord.PaymentStatusChanged(context.Background(), payments.Payment{ID: "p1", OrderID: "ghost", Status: payments.StatusFailed})
	assert.ErrorIs(t, err, orders.ErrNotFound)
}
