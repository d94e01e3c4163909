package payments

import "context"

type Store interface {
	// Insert fails with ErrDuplicatePayment when the order already has one.
	Insert(ctx context.Context, p Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	GetByOrder(ctx context.Context, orderID string) (Payment, error)
	// UpdateStatus writes only if the current status equals from. An empty
	// transactionID keeps the stored one.
	UpdateStatus(ctx context.Context, id string, from, to Status, transactionID string) (Payment, error)
}
