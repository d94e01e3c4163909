package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*memOrder
	seq    int64
	now    func() time.Time
}

type memOrder struct {
	order Order
	seq   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*memOrder), now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) Create(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.IdempotencyKey != "" {
		for _, m := range s.orders {
			if m.order.UserID == o.UserID && m.order.IdempotencyKey == o.IdempotencyKey {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	s.seq++
	now := s.now()
	o = o.clone()
	o.CreatedAt, o.UpdatedAt = now, now
	s.orders[o.ID] = &memOrder{order: o, seq: s.seq}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return m.order.clone(), nil
}

func (s *MemoryStore) GetByIdempotencyKey(_ context.Context, userID, key string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.orders {
		if key != "" && m.order.UserID == userID && m.order.IdempotencyKey == key {
			return m.order.clone(), nil
		}
	}
	return Order{}, ErrNotFound
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	s.mu.RLock()
	var ms []*memOrder
	for _, m := range s.orders {
		if m.order.UserID == userID {
			ms = append(ms, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(ms, func(i, j int) bool { return ms[i].seq > ms[j].seq })
	out := make([]Order, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.order.clone())
	}
	return out, nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, id string, from, to Status) (Order, error) {
	if err := checkStatusEdge(from, to); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if m.order.Status != from {
		return Order{}, staleErr(id, from, m.order.Status)
	}
	m.order.Status = to
	m.order.UpdatedAt = s.now()
	return m.order.clone(), nil
}

func (s *MemoryStore) TransitionPaymentStatus(_ context.Context, id string, from, to PaymentStatus) (Order, error) {
	if err := checkPaymentEdge(from, to); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if m.order.PaymentStatus != from {
		return Order{}, staleErr(id, from, m.order.PaymentStatus)
	}
	m.order.PaymentStatus = to
	m.order.UpdatedAt = s.now()
	return m.order.clone(), nil
}
