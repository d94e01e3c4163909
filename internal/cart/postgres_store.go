package cart

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore serialises a user's cart operations on the carts row: every
// write transaction starts by upserting it, which holds its row lock until
// commit.
type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) withCart(ctx context.Context, userID string, fn func(tx pgx.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storage.Wrap("begin cart tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()`, userID); err != nil {
		return storage.Wrap("lock cart", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return storage.Wrap("commit cart tx", tx.Commit(ctx))
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadCart(ctx context.Context, q querier, userID string) (Cart, error) {
	c := Cart{UserID: userID, Lines: []Line{}}
	err := q.QueryRow(ctx, `SELECT updated_at FROM carts WHERE user_id = $1`, userID).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return Cart{}, storage.Wrap("get cart", err)
	}

	rows, err := q.Query(ctx, `
		SELECT product_id, quantity FROM cart_lines
		WHERE user_id = $1 ORDER BY added_at, product_id`, userID)
	if err != nil {
		return Cart{}, storage.Wrap("get cart lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return Cart{}, storage.Wrap("scan cart line", err)
		}
		c.Lines = append(c.Lines, l)
	}
	return c, storage.Wrap("get cart lines", rows.Err())
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Cart, error) {
	return loadCart(ctx, s.DB, userID)
}

func (s *PostgresStore) AddLine(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	var c Cart
	err := s.withCart(ctx, userID, func(tx pgx.Tx) error {
		if qty > MaxLineQuantity {
			return ErrInvalidQuantity
		}
		ct, err := tx.Exec(ctx, `
			INSERT INTO cart_lines (user_id, product_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
			WHERE cart_lines.quantity + EXCLUDED.quantity <= $4`,
			userID, productID, qty, MaxLineQuantity)
		if err != nil {
			return storage.Wrap("add cart line", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrInvalidQuantity
		}
		c, err = loadCart(ctx, tx, userID)
		return err
	})
	return c, err
}

func (s *PostgresStore) SetLineQuantity(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if qty <= 0 {
		return s.RemoveLine(ctx, userID, productID)
	}
	var c Cart
	err := s.withCart(ctx, userID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cart_lines (user_id, product_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
			userID, productID, qty); err != nil {
			return storage.Wrap("set cart line", err)
		}
		var err error
		c, err = loadCart(ctx, tx, userID)
		return err
	})
	return c, err
}

func (s *PostgresStore) RemoveLine(ctx context.Context, userID, productID string) (Cart, error) {
	var c Cart
	err := s.withCart(ctx, userID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`,
			userID, productID); err != nil {
			return storage.Wrap("remove cart line", err)
		}
		var err error
		c, err = loadCart(ctx, tx, userID)
		return err
	})
	return c, err
}

func (s *PostgresStore) ReadAndClear(ctx context.Context, userID string) ([]Line, error) {
	var lines []Line
	err := s.withCart(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH cleared AS (
				DELETE FROM cart_lines WHERE user_id = $1
				RETURNING product_id, quantity, added_at
			)
			SELECT product_id, quantity FROM cleared ORDER BY added_at, product_id`, userID)
		if err != nil {
			return storage.Wrap("clear cart", err)
		}
		defer rows.Close()
		for rows.Next() {
			var l Line
			if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
				return storage.Wrap("scan cleared line", err)
			}
			lines = append(lines, l)
		}
		if err := rows.Err(); err != nil {
			return storage.Wrap("clear cart", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *PostgresStore) Restore(ctx context.Context, userID string, lines []Line) error {
	now := time.Now().UTC()
	return s.withCart(ctx, userID, func(tx pgx.Tx) error {
		for _, l := range lines {
			if l.Quantity <= 0 {
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO cart_lines (user_id, product_id, quantity, added_at) VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`,
				userID, l.ProductID, l.Quantity, now); err != nil {
				return storage.Wrap("restore cart line", err)
			}
		}
		return nil
	})
}
