package payments

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Payment
	byOrder map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]*Payment{}, byOrder: map[string]string{}}
}

func (s *MemoryStore) Insert(_ context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byOrder[p.OrderID]; ok {
		return ErrDuplicatePayment
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.byID[p.ID] = &p
	s.byOrder[p.OrderID] = p.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *p, nil
}

func (s *MemoryStore) GetByOrder(_ context.Context, orderID string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOrder[orderID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *s.byID[id], nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to Status, transactionID string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	if p.Status != from {
		return Payment{}, errStale
	}
	p.Status = to
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	p.UpdatedAt = time.Now().UTC()
	return *p, nil
}
