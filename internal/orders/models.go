package orders

import "time"

// Item is a line frozen at checkout, priced with the catalog price of that moment.
type Item struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

func (i Item) SubtotalCents() int64 { return int64(i.Qty) * i.UnitPriceCents }

// Order is immutable after creation except for Status and PaymentStatus,
// which only Store transitions change.
type Order struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	IdempotencyKey    string        `json:"idempotency_key,omitempty"`
	ShippingAddressID string        `json:"shipping_address_id"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	Status            Status        `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	Items             []Item        `json:"items"`
	TotalCents        int64         `json:"total_cents"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func totalOf(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.SubtotalCents()
	}
	return total
}

func (o Order) clone() Order {
	items := make([]Item, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
