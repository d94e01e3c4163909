// Package address answers ownership questions about stored shipping addresses.
package address

import (
	"context"
	"errors"
	"sync"

	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Book interface {
	BelongsTo(ctx context.Context, addressID, userID string) (bool, error)
}

type Postgres struct{ DB *pgxpool.Pool }

func (b *Postgres) BelongsTo(ctx context.Context, addressID, userID string) (bool, error) {
	var owner string
	err := b.DB.QueryRow(ctx, `SELECT user_id FROM addresses WHERE id = $1`, addressID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storage.Wrap("address owner", err)
	}
	return owner == userID, nil
}

// Memory maps address id -> owning user id.
type Memory struct {
	mu     sync.RWMutex
	owners map[string]string
}

func NewMemory() *Memory { return &Memory{owners: map[string]string{}} }

func (m *Memory) Add(addressID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[addressID] = userID
}

func (m *Memory) BelongsTo(_ context.Context, addressID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[addressID]
	return ok && owner == userID, nil
}
