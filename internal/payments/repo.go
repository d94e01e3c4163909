package payments

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store. The UNIQUE(order_id) constraint is what makes
// concurrent Inserts for one order produce exactly one row.
type Repo struct{ DB *pgxpool.Pool }

const paymentColumns = `id, order_id, amount_cents, method, status, COALESCE(transaction_id, ''), created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.AmountCents, &p.Method, &p.Status, &p.TransactionID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repo) Insert(ctx context.Context, p Payment) error {
	var txn *string
	if p.TransactionID != "" {
		txn = &p.TransactionID
	}
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount_cents, method, status, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO NOTHING`,
		p.ID, p.OrderID, p.AmountCents, string(p.Method), string(p.Status), txn)
	if err != nil {
		return storage.Wrap("insert payment", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicatePayment
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (Payment, error) {
	return r.one(ctx, "get payment", `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *Repo) GetByOrder(ctx context.Context, orderID string) (Payment, error) {
	return r.one(ctx, "get payment by order", `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
}

func (r *Repo) one(ctx context.Context, op, q string, arg string) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, storage.Wrap(op, err)
	}
	return p, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, from, to Status, transactionID string) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, `
		UPDATE payments
		SET status = $3,
		    transaction_id = COALESCE(NULLIF($4, ''), transaction_id),
		    updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+paymentColumns, id, string(from), string(to), transactionID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, storage.Wrap("update payment status", err)
	}
	if _, err := r.Get(ctx, id); err != nil {
		return Payment{}, err
	}
	return Payment{}, errStale
}
