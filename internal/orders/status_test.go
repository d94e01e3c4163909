package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPaid, StatusShipped, true},
		{StatusShipped, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusShipped, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusPaid, StatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("shipped")
	assert.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("lost")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPaid.Terminal())
}

func TestPaymentStatusTable(t *testing.T) {
	assert.True(t, CanTransitionPayment(PaymentPending, PaymentCompleted))
	assert.True(t, CanTransitionPayment(PaymentPending, PaymentFailed))
	assert.False(t, CanTransitionPayment(PaymentFailed, PaymentCompleted))
	assert.False(t, CanTransitionPayment(PaymentCompleted, PaymentFailed))
	assert.True(t, MethodCard.Valid())
	assert.False(t, PaymentMethod("crypto").Valid())
}
