package orders

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventPaymentStatusChanged = "PaymentStatusChanged"
	EventGatewayCallback      = "PaymentGatewayCallback"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID        string        `json:"order_id"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	UserID         string        `json:"user_id"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	Items          []Item        `json:"items"`
	TotalCents     int64         `json:"total_cents"`
}

// OrderStatusChangedPayload covers both order fields; Field is "status" or
// "payment_status".
type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	Field   string `json:"field"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type PaymentStatusChangedPayload struct {
	PaymentID     string `json:"payment_id"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	AmountCents   int64  `json:"amount_cents"`
}

// GatewayCallbackPayload is what the payment gateway reports for a payment.
type GatewayCallbackPayload struct {
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Publisher is satisfied by the Kafka producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Emitter wraps payloads in an Envelope and hands them to a Publisher.
// A nil Emitter or nil Publisher drops events.
type Emitter struct {
	Pub      Publisher
	Producer string
}

func NewEnvelope(producer, eventType, orderID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}, nil
}

func (e *Emitter) Emit(topic, eventType, orderID string, payload any) {
	if e == nil || e.Pub == nil {
		return
	}
	env, err := NewEnvelope(e.Producer, eventType, orderID, payload)
	if err != nil {
		log.Printf("build %s event: %v", eventType, err)
		return
	}
	b, err := json.Marshal(env)
	if err != nil {
		log.Printf("marshal %s event: %v", eventType, err)
		return
	}
	e.Pub.Publish(topic, PartitionKey(orderID), b,
		kafkago.Header{Key: "event_type", Value: []byte(eventType)})
}
