package reconcile

import (
	"context"
	"errors"

	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/logging"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type PaymentUpdater interface {
	UpdatePaymentStatus(ctx context.Context, paymentID string, to payments.Status, transactionID string) (payments.Payment, error)
}

// Deduper remembers processed event ids.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type RedisDeduper struct {
	RDB     *redis.Client
	Service string
}

func (d *RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return redisx.Claim(ctx, d.RDB, redisx.DedupKey(d.Service, eventID), redisx.TTLDedup)
}

func (d *RedisDeduper) Release(ctx context.Context, eventID string) error {
	return redisx.Release(ctx, d.RDB, redisx.DedupKey(d.Service, eventID))
}

// CallbackHandler feeds payment gateway callbacks into the ledger. It returns
// an error only for failures worth redelivering; malformed and conflicting
// callbacks are logged and acknowledged.
type CallbackHandler struct {
	Ledger   PaymentUpdater
	Dedup    Deduper // optional
	Log      *logging.Logger
	Outcomes *metrics.Outcomes
}

func (h *CallbackHandler) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		h.done(logging.Fields{Step: "callback_decode"}, "malformed", err)
		return nil
	}
	fields := logging.Fields{EventID: env.EventID, OrderID: env.CorrelationID, Step: "gateway_callback"}

	cb, err := kafkax.UnwrapPayload[orders.GatewayCallbackPayload](env.Payload)
	if err != nil {
		h.done(fields, "malformed", err)
		return nil
	}
	fields.PaymentID = cb.PaymentID
	status, err := payments.ParseStatus(cb.Status)
	if err != nil {
		h.done(fields, "malformed", err)
		return nil
	}

	if h.Dedup != nil && env.EventID != "" {
		fresh, err := h.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			h.done(fields, "error", err)
			return err
		}
		if !fresh {
			h.done(fields, "duplicate", nil)
			return nil
		}
	}

	_, err = h.Ledger.UpdatePaymentStatus(ctx, cb.PaymentID, status, cb.TransactionID)
	switch {
	case err == nil:
		fields.Status = string(status)
		h.done(fields, "applied", nil)
		return nil
	case errors.Is(err, payments.ErrIllegalTransition),
		errors.Is(err, payments.ErrNotFound),
		errors.Is(err, payments.ErrInvalidInput):
		h.done(fields, "conflict", err)
		return nil
	default:
		if h.Dedup != nil && env.EventID != "" {
			if rerr := h.Dedup.Release(context.WithoutCancel(ctx), env.EventID); rerr != nil {
				h.Log.Err(logging.Fields{EventID: env.EventID, Step: "dedup_release"}, rerr)
			}
		}
		h.done(fields, "error", err)
		return err
	}
}

func (h *CallbackHandler) done(f logging.Fields, outcome string, err error) {
	h.Outcomes.Inc(outcome)
	if f.Status == "" {
		f.Status = outcome
	} else {
		f.Message = outcome
	}
	if err != nil {
		h.Log.Err(f, err)
		return
	}
	h.Log.Log(f)
}
