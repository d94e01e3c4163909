package catalog

import (
	"context"
	"sync"
)

type Memory struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemory(products ...Product) *Memory {
	m := &Memory{products: make(map[string]Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *Memory) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) SetPrice(productID string, cents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[productID]; ok {
		p.PriceCents = cents
		m.products[productID] = p
	}
}

func (m *Memory) SetActive(productID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[productID]; ok {
		p.Active = active
		m.products[productID] = p
	}
}

func (m *Memory) LookupPrice(_ context.Context, productID string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[productID]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) IsActive(_ context.Context, productID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[productID]
	if !ok {
		return false, ErrNotFound
	}
	return p.Active, nil
}
