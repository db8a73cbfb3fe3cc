// Package cart holds saved basket storage.
package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// MemoryStore keeps carts in process memory
type MemoryStore struct {
	carts map[string]*domain.Cart
	mutex sync.RWMutex
}

// NewMemoryStore creates an empty cart store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts: make(map[string]*domain.Cart),
	}
}

func (s *MemoryStore) Create(ctx context.Context, cart *domain.Cart) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.carts[cart.ID]; ok {
		return fmt.Errorf("%w: cart %s already exists", domain.ErrInvalidRequest, cart.ID)
	}
	s.carts[cart.ID] = copyCart(cart)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Cart, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cart, ok := s.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return copyCart(cart), nil
}

func (s *MemoryStore) AddItem(ctx context.Context, id, reference string, quantity int, at time.Time) (*domain.Cart, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cart, ok := s.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].Reference == reference {
			cart.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{Reference: reference, Quantity: quantity, AddedAt: at})
	}
	cart.UpdatedAt = at

	return copyCart(cart), nil
}

func copyCart(cart *domain.Cart) *domain.Cart {
	copied := *cart
	copied.Items = make([]domain.CartItem, len(cart.Items))
	for i, item := range cart.Items {
		item.Product = nil
		copied.Items[i] = item
	}
	return &copied
}
