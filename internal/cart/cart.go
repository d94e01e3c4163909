// Package cart owns the mutable per-user cart. Every store serialises the
// operations of one user (row lock, document version, or mutex), and
// ReadAndClear is the only way checkout consumes a cart.
package cart

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 10000")
	ErrInvalidInput    = errors.New("user id and product id are required")
)

// MaxLineQuantity bounds a single line, including the sum of repeated adds.
const MaxLineQuantity = 10_000

type Line struct {
	ProductID string `json:"product_id" bson:"product_id"`
	Quantity  int    `json:"quantity" bson:"quantity"`
}

type Cart struct {
	UserID    string    `json:"user_id"`
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Cart) Empty() bool { return len(c.Lines) == 0 }

type Store interface {
	// Get returns the user's cart; a user without one gets an empty cart.
	Get(ctx context.Context, userID string) (Cart, error)
	// AddLine sums qty into an existing line for the product. A sum above
	// MaxLineQuantity fails with ErrInvalidQuantity and changes nothing.
	AddLine(ctx context.Context, userID, productID string, qty int) (Cart, error)
	// SetLineQuantity replaces the line; qty <= 0 removes it.
	SetLineQuantity(ctx context.Context, userID, productID string, qty int) (Cart, error)
	RemoveLine(ctx context.Context, userID, productID string) (Cart, error)
	// ReadAndClear atomically returns the lines and empties the cart.
	// An empty cart yields ErrEmptyCart and no change.
	ReadAndClear(ctx context.Context, userID string) ([]Line, error)
	// Restore merges lines back after a failed checkout, summing quantities.
	Restore(ctx context.Context, userID string, lines []Line) error
}

func addLine(lines []Line, productID string, qty int) ([]Line, error) {
	for i := range lines {
		if lines[i].ProductID == productID {
			if qty > MaxLineQuantity-lines[i].Quantity {
				return nil, ErrInvalidQuantity
			}
			lines[i].Quantity += qty
			return lines, nil
		}
	}
	if qty > MaxLineQuantity {
		return nil, ErrInvalidQuantity
	}
	return append(lines, Line{ProductID: productID, Quantity: qty}), nil
}

func setLine(lines []Line, productID string, qty int) []Line {
	if qty <= 0 {
		return removeLine(lines, productID)
	}
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = qty
			return lines
		}
	}
	return append(lines, Line{ProductID: productID, Quantity: qty})
}

func removeLine(lines []Line, productID string) []Line {
	out := lines[:0]
	for _, l := range lines {
		if l.ProductID != productID {
			out = append(out, l)
		}
	}
	return out
}

// mergeLines puts checked-out lines back. It is not capped: restored
// quantities were already in the cart and must not be lost.
func mergeLines(lines, extra []Line) []Line {
next:
	for _, l := range extra {
		if l.Quantity <= 0 {
			continue
		}
		for i := range lines {
			if lines[i].ProductID == l.ProductID {
				lines[i].Quantity += l.Quantity
				continue next
			}
		}
		lines = append(lines, l)
	}
	return lines
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}
