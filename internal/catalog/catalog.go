// Package catalog is the read-only product lookup the checkout path depends on.
// Product storage itself is owned elsewhere; this package only reads it.
package catalog

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("product not found")
	ErrInactive = errors.New("product is not active")
)

type Product struct {
	ID         string `json:"id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Active     bool   `json:"active"`
}

type Catalog interface {
	// LookupPrice returns the product with its current price, or ErrNotFound.
	LookupPrice(ctx context.Context, productID string) (Product, error)
	IsActive(ctx context.Context, productID string) (bool, error)
}

// Resolve returns the product only if it exists and is active.
func Resolve(ctx context.Context, c Catalog, productID string) (Product, error) {
	active, err := c.IsActive(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if !active {
		return Product{}, ErrInactive
	}
	return c.LookupPrice(ctx, productID)
}
