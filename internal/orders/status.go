package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// A shipped order is committed to fulfilment and can no longer be cancelled.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusCompleted: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, s)
	}
	return st, nil
}

// PaymentStatus mirrors the funding payment. completed and failed are terminal;
// a failed payment is never resurrected.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:   {PaymentCompleted: true, PaymentFailed: true},
	PaymentCompleted: {},
	PaymentFailed:    {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}

func (s PaymentStatus) Valid() bool {
	_, ok := validPaymentNext[s]
	return ok
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodWallet       PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodCash, MethodBankTransfer, MethodWallet:
		return true
	}
	return false
}
