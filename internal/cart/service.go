package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/catalog"
	"golang.org/x/sync/singleflight"
)

// Service validates cart commands, checks products against the catalog and
// keeps the read cache coherent. The optional cache may be nil.
type Service struct {
	store   Store
	catalog catalog.Catalog
	cache   Cache
	sfg     singleflight.Group
}

func NewService(store Store, cat catalog.Catalog, cache Cache) *Service {
	return &Service{store: store, catalog: cat, cache: cache}
}

func validIDs(ids ...string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return ErrInvalidInput
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	if err := validIDs(userID); err != nil {
		return Cart{}, err
	}
	if s.cache == nil {
		return s.store.Get(ctx, userID)
	}
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		c, err := s.cache.Get(ctx, userID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("cart cache get error: %v", err)
		}
		gen, genErr := s.cache.Generation(ctx, userID)
		if genErr != nil {
			log.Printf("cart cache generation error: %v", genErr)
		}
		c, err = s.store.Get(ctx, userID)
		if err != nil {
			return Cart{}, err
		}
		if genErr == nil {
			if err := s.cache.Set(ctx, c, gen); err != nil {
				log.Printf("cart cache set error: %v", err)
			}
		}
		return c, nil
	})
	if err != nil {
		return Cart{}, err
	}
	return v.(Cart), nil
}

// AddLine upserts a line, summing into an existing one for the same product.
func (s *Service) AddLine(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if err := validIDs(userID, productID); err != nil {
		return Cart{}, err
	}
	if qty <= 0 || qty > MaxLineQuantity {
		return Cart{}, ErrInvalidQuantity
	}
	if err := s.checkProduct(ctx, productID); err != nil {
		return Cart{}, err
	}
	c, err := s.store.AddLine(ctx, userID, productID, qty)
	s.invalidate(userID)
	return c, err
}

// SetLineQuantity replaces a line; qty <= 0 removes it.
func (s *Service) SetLineQuantity(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if err := validIDs(userID, productID); err != nil {
		return Cart{}, err
	}
	if qty > MaxLineQuantity {
		return Cart{}, ErrInvalidQuantity
	}
	if qty > 0 {
		if err := s.checkProduct(ctx, productID); err != nil {
			return Cart{}, err
		}
	}
	c, err := s.store.SetLineQuantity(ctx, userID, productID, qty)
	s.invalidate(userID)
	return c, err
}

func (s *Service) RemoveLine(ctx context.Context, userID, productID string) (Cart, error) {
	if err := validIDs(userID, productID); err != nil {
		return Cart{}, err
	}
	c, err := s.store.RemoveLine(ctx, userID, productID)
	s.invalidate(userID)
	return c, err
}

func (s *Service) ReadAndClear(ctx context.Context, userID string) ([]Line, error) {
	if err := validIDs(userID); err != nil {
		return nil, err
	}
	lines, err := s.store.ReadAndClear(ctx, userID)
	if err == nil {
		s.invalidate(userID)
	}
	return lines, err
}

func (s *Service) Restore(ctx context.Context, userID string, lines []Line) error {
	err := s.store.Restore(ctx, userID, lines)
	s.invalidate(userID)
	return err
}

func (s *Service) checkProduct(ctx context.Context, productID string) error {
	if s.catalog == nil {
		return nil
	}
	if _, err := catalog.Resolve(ctx, s.catalog, productID); err != nil {
		return fmt.Errorf("product %s: %w", productID, err)
	}
	return nil
}

func (s *Service) invalidate(userID string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		log.Printf("cart cache invalidate error: %v", err)
	}
}
