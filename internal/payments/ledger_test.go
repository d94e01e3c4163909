package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	seen []Payment
	err  error
}

func (n *recordingNotifier) PaymentStatusChanged(_ context.Context, p Payment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, p)
	return n.err
}

func (n *recordingNotifier) calls() []Payment {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Payment(nil), n.seen...)
}

func newTestLedger(t *testing.T) (*Ledger, *orders.MemoryStore, *recordingNotifier) {
	t.Helper()
	ords := orders.NewMemoryStore()
	n := &recordingNotifier{}
	return &Ledger{Store: NewMemoryStore(), Orders: ords, Notifier: n}, ords, n
}

func seedOrder(t *testing.T, ords *orders.MemoryStore, id string) {
	t.Helper()
	items := []orders.Item{
		{ProductID: "prod-a", ProductName: "A", Qty: 2, UnitPriceCents: 1000},
		{ProductID: "prod-b", ProductName: "B", Qty: 1, UnitPriceCents: 500},
	}
	require.NoError(t, ords.Create(context.Background(), orders.Order{
		ID: id, UserID: "user-1", ShippingAddressID: "addr1", PaymentMethod: orders.MethodCard,
		Status: orders.StatusPending, PaymentStatus: orders.PaymentPending,
		Items: items, TotalCents: 2500,
	}))
}

func TestLedger_CreateCopiesOrderTotal(t *testing.T) {
	l, ords, n := newTestLedger(t)
	seedOrder(t, ords, "o1")

	p, err := l.CreatePayment(context.Background(), "o1", orders.MethodCard, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), p.AmountCents)
	assert.Equal(t, StatusPending, p.Status)
	require.Len(t, n.calls(), 1)
}

func TestLedger_CashIsCompletedImmediately(t *testing.T) {
	l, ords, n := newTestLedger(t)
	seedOrder(t, ords, "o1")

	p, err := l.CreatePayment(context.Background(), "o1", orders.MethodCash, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	require.Len(t, n.calls(), 1)
	assert.Equal(t, StatusCompleted, n.calls()[0].Status)
}

func TestLedger_CancelledOrderTakesNoPayment(t *testing.T) {
	l, ords, n := newTestLedger(t)
	seedOrder(t, ords, "o1")
	ctx := context.Background()
	_, err := ords.TransitionStatus(ctx, "o1", orders.StatusPending, orders.StatusCancelled)
	require.NoError(t, err)

	_, err = l.CreatePayment(ctx, "o1", orders.MethodCash, "")
	assert.ErrorIs(t, err, ErrOrderNotPayable)
	assert.Empty(t, n.calls())

	_, err = l.Store.GetByOrder(ctx, "o1")
	assert.ErrorIs(t, err, ErrNotFound)

	o, err := ords.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
}

func TestLedger_CreateValidation(t *testing.T) {
	l, ords, _ := newTestLedger(t)
	seedOrder(t, ords, "o1")
	ctx := context.Background()

	_, err := l.CreatePayment(ctx, "missing", orders.MethodCard, "")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	_, err = l.CreatePayment(ctx, "o1", "crypto", "")
	assert.ErrorIs(t, err, orders.ErrInvalidPaymentMethod)

	_, err = l.CreatePayment(ctx, "", orders.MethodCard, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLedger_ExactlyOnePaymentPerOrder(t *testing.T) {
	l, ords, _ := newTestLedger(t)
	seedOrder(t, ords, "o1")

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.CreatePayment(context.Background(), "o1", orders.MethodCard, "")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrDuplicatePayment):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(19), dup.Load())
}

func TestLedger_UpdateIsIdempotentAndGuarded(t *testing.T) {
	l, ords, n := newTestLedger(t)
	seedOrder(t, ords, "o1")
	ctx := context.Background()

	p, err := l.CreatePayment(ctx, "o1", orders.MethodCard, "")
	require.NoError(t, err)

	got, err := l.UpdatePaymentStatus(ctx, p.ID, StatusCompleted, "txn123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "txn123", got.TransactionID)

	again, err := l.UpdatePaymentStatus(ctx, p.ID, StatusCompleted, "txn123")
	require.NoError(t, err)
	assert.Equal(t, got, again)

	_, err = l.UpdatePaymentStatus(ctx, p.ID, StatusFailed, "")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = l.UpdatePaymentStatus(ctx, p.ID, StatusPending, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.UpdatePaymentStatus(ctx, "missing", StatusCompleted, "")
	assert.ErrorIs(t, err, ErrNotFound)

	// create, update, re-apply
	assert.Len(t, n.calls(), 3)
}

func TestLedger_ConcurrentConflictingUpdates(t *testing.T) {
	l, ords, _ := newTestLedger(t)
	seedOrder(t, ords, "o1")
	ctx := context.Background()
	p, err := l.CreatePayment(ctx, "o1", orders.MethodWallet, "")
	require.NoError(t, err)

	var completed, failed, illegal atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		to := StatusCompleted
		if i%2 == 1 {
			to = StatusFailed
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.UpdatePaymentStatus(ctx, p.ID, to, "")
			switch {
			case err == nil && got.Status == StatusCompleted:
				completed.Add(1)
			case err == nil && got.Status == StatusFailed:
				failed.Add(1)
			case errors.Is(err, ErrIllegalTransition):
				illegal.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), illegal.Load())
	assert.True(t, completed.Load() == 5 || failed.Load() == 5)
	assert.True(t, completed.Load() == 0 || failed.Load() == 0)
}

func TestLedger_NotifierErrorSurfaces(t *testing.T) {
	l, ords, n := newTestLedger(t)
	seedOrder(t, ords, "o1")
	n.err = errors.New("order store down")

	p, err := l.CreatePayment(context.Background(), "o1", orders.MethodCash, "")
	assert.Error(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
}
