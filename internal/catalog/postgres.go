package catalog

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct{ DB *pgxpool.Pool }

func (c *Postgres) LookupPrice(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := c.DB.QueryRow(ctx, `
		SELECT id, sku, name, price_cents, active
		FROM products WHERE id = $1`, productID,
	).Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, storage.Wrap("lookup product", err)
	}
	return p, nil
}

func (c *Postgres) IsActive(ctx context.Context, productID string) (bool, error) {
	var active bool
	err := c.DB.QueryRow(ctx, `SELECT active FROM products WHERE id = $1`, productID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, storage.Wrap("product active", err)
	}
	return active, nil
}
