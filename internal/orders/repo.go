package orders

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store. Transitions are conditional updates
// (WHERE status = from), so concurrent callers linearise per order row.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, user_id, COALESCE(idempotency_key, ''), shipping_address_id, payment_method,
	status, payment_status, total_cents, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.IdempotencyKey, &o.ShippingAddressID, &o.PaymentMethod,
		&o.Status, &o.PaymentStatus, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// Create inserts the order and its items in one transaction.
func (r *Repo) Create(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storage.Wrap("begin order tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var idemKey *string
	if o.IdempotencyKey != "" {
		idemKey = &o.IdempotencyKey
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, idempotency_key, shipping_address_id, payment_method,
		                    status, payment_status, total_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.UserID, idemKey, o.ShippingAddressID, string(o.PaymentMethod),
		string(o.Status), string(o.PaymentStatus), o.TotalCents)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_user_idempotency_key" {
			return ErrDuplicateIdempotencyKey
		}
		return storage.Wrap("insert order", err)
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, product_name, qty, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, i+1, it.ProductID, it.ProductName, it.Qty, it.UnitPriceCents,
		); err != nil {
			return storage.Wrap("insert order item", err)
		}
	}
	return storage.Wrap("commit order tx", tx.Commit(ctx))
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, storage.Wrap("get order", err)
	}
	if err := r.loadItems(ctx, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) GetByIdempotencyKey(ctx context.Context, userID, key string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, storage.Wrap("get order by idempotency key", err)
	}
	if err := r.loadItems(ctx, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, storage.Wrap("list orders", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storage.Wrap("scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list orders", err)
	}

	ptrs := make([]*Order, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := r.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) loadItems(ctx context.Context, os []*Order) error {
	if len(os) == 0 {
		return nil
	}
	byID := make(map[string]*Order, len(os))
	ids := make([]string, 0, len(os))
	for _, o := range os {
		o.Items = []Item{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, product_name, qty, unit_price_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return storage.Wrap("load order items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderID string
		var it Item
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Qty, &it.UnitPriceCents); err != nil {
			return storage.Wrap("scan order item", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return storage.Wrap("load order items", rows.Err())
}

func (r *Repo) TransitionStatus(ctx context.Context, id string, from, to Status) (Order, error) {
	if err := checkStatusEdge(from, to); err != nil {
		return Order{}, err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = clock_timestamp()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return Order{}, storage.Wrap("transition order status", err)
	}
	if ct.RowsAffected() == 0 {
		return Order{}, r.explainMiss(ctx, id, func(o Order) error { return staleErr(id, from, o.Status) })
	}
	return r.Get(ctx, id)
}

func (r *Repo) TransitionPaymentStatus(ctx context.Context, id string, from, to PaymentStatus) (Order, error) {
	if err := checkPaymentEdge(from, to); err != nil {
		return Order{}, err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status = $3, updated_at = clock_timestamp()
		WHERE id = $1 AND payment_status = $2`, id, string(from), string(to))
	if err != nil {
		return Order{}, storage.Wrap("transition order payment status", err)
	}
	if ct.RowsAffected() == 0 {
		return Order{}, r.explainMiss(ctx, id, func(o Order) error { return staleErr(id, from, o.PaymentStatus) })
	}
	return r.Get(ctx, id)
}

// explainMiss turns a zero-row conditional update into ErrNotFound or a stale error.
func (r *Repo) explainMiss(ctx context.Context, id string, stale func(Order) error) error {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return storage.Wrap("get order", err)
	}
	return stale(o)
}
