// Package payments owns Payment records: at most one per order, amount copied
// from the order total, status moved only through guarded updates.
package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrDuplicatePayment: the order already has a payment. Nothing was written.
	ErrDuplicatePayment = errors.New("payment for this order already exists")
	// ErrIllegalTransition: completed and failed never turn into each other.
	ErrIllegalTransition = errors.New("illegal payment status transition")
	ErrInvalidInput      = errors.New("invalid payment input")
	// ErrOrderNotPayable: the order was cancelled before it got a payment.
	ErrOrderNotPayable = errors.New("order is cancelled and cannot take a payment")

	errStale = errors.New("payment status changed concurrently")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// Method is the order's payment method vocabulary.
type Method = orders.PaymentMethod

type Payment struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	AmountCents   int64     `json:"amount_cents"`
	Method        Method    `json:"method"`
	Status        Status    `json:"status"`
	TransactionID string    `json:"transaction_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
