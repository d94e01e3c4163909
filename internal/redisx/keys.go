package redisx

import (
	"fmt"
	"time"
)

const (
	// Checkout idempotency: idem:checkout:{user_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Order read cache: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Cart read cache: cart:{user_id} -> cart JSON
	KeyCart = "cart:%s"

	// Invalidation counter of a cached key: {key}:gen
	KeyGeneration = "%s:gen"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 30 * time.Second
	TTLCartCache   = 2 * time.Minute
	TTLDedup       = 48 * time.Hour
	// outlives every cached value it fences
	TTLGeneration = 10 * time.Minute
)

func IdemCheckoutKey(userID, key string) string { return fmt.Sprintf(KeyIdemCheckout, userID, key) }

func OrderKey(orderID string) string { return fmt.Sprintf(KeyOrder, orderID) }

func CartKey(userID string) string { return fmt.Sprintf(KeyCart, userID) }

func GenerationKey(key string) string { return fmt.Sprintf(KeyGeneration, key) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
