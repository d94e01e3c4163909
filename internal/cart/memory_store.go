package cart

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps carts in process. Each user's cart has its own mutex.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]*memCart
}

type memCart struct {
	mu        sync.Mutex
	lines     []Line
	updatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]*memCart)}
}

func (s *MemoryStore) cart(userID string) *memCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		c = &memCart{}
		s.carts[userID] = c
	}
	return c
}

func (s *MemoryStore) mutate(userID string, fn func([]Line) ([]Line, error)) (Cart, error) {
	c := s.cart(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(cloneLines(c.lines))
	if err != nil {
		return Cart{}, err
	}
	c.lines = next
	c.updatedAt = time.Now().UTC()
	return Cart{UserID: userID, Lines: cloneLines(c.lines), UpdatedAt: c.updatedAt}, nil
}

func infallible(fn func([]Line) []Line) func([]Line) ([]Line, error) {
	return func(l []Line) ([]Line, error) { return fn(l), nil }
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Cart, error) {
	c := s.cart(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return Cart{UserID: userID, Lines: cloneLines(c.lines), UpdatedAt: c.updatedAt}, nil
}

func (s *MemoryStore) AddLine(_ context.Context, userID, productID string, qty int) (Cart, error) {
	return s.mutate(userID, func(l []Line) ([]Line, error) { return addLine(l, productID, qty) })
}

func (s *MemoryStore) SetLineQuantity(_ context.Context, userID, productID string, qty int) (Cart, error) {
	return s.mutate(userID, infallible(func(l []Line) []Line { return setLine(l, productID, qty) }))
}

func (s *MemoryStore) RemoveLine(_ context.Context, userID, productID string) (Cart, error) {
	return s.mutate(userID, infallible(func(l []Line) []Line { return removeLine(l, productID) }))
}

func (s *MemoryStore) ReadAndClear(_ context.Context, userID string) ([]Line, error) {
	c := s.cart(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return nil, ErrEmptyCart
	}
	out := c.lines
	c.lines = nil
	c.updatedAt = time.Now().UTC()
	return out, nil
}

func (s *MemoryStore) Restore(_ context.Context, userID string, lines []Line) error {
	_, err := s.mutate(userID, infallible(func(l []Line) []Line { return mergeLines(l, lines) }))
	return err
}
