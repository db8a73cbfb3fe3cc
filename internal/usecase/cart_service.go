package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pricelens/backend/internal/domain"
)

// CartService manages saved baskets and prices them with the basket optimizer
type CartService struct {
	carts   domain.CartRepository
	catalog *CatalogService
	now     func() time.Time
}

// NewCartService creates a cart service over carts, resolving products through catalog
func NewCartService(carts domain.CartRepository, catalog *CatalogService) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		now:     time.Now,
	}
}

// CreateCart stores a new empty cart
func (s *CartService) CreateCart(ctx context.Context) (*domain.Cart, error) {
	now := s.now().UTC()
	cart := &domain.Cart{
		ID:        uuid.NewString(),
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.carts.Create(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// GetCart returns the cart with each line's current catalog entry
func (s *CartService) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: cart id is required", domain.ErrInvalidRequest)
	}
	cart, err := s.carts.Get(ctx, id)
	if err != nil {
		return nil, wrapCartNotFound(err, id)
	}
	return s.resolve(ctx, cart)
}

// AddProduct adds quantity units of reference to the cart. Adding a product the
// cart already holds increases that line's quantity.
func (s *CartService) AddProduct(ctx context.Context, id, reference string, quantity int) (*domain.Cart, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: cart id is required", domain.ErrInvalidRequest)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive for %s", domain.ErrInvalidRequest, reference)
	}

	entry, err := s.catalog.GetProduct(ctx, reference)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, reference)
		}
		return nil, err
	}

	cart, err := s.carts.AddItem(ctx, id, entry.Reference, quantity, s.now().UTC())
	if err != nil {
		return nil, wrapCartNotFound(err, id)
	}
	return s.resolve(ctx, cart)
}

// OptimizeCart prices the saved cart in both stores
func (s *CartService) OptimizeCart(ctx context.Context, id string) (domain.BasketOptimizationResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.BasketOptimizationResult{}, fmt.Errorf("%w: cart id is required", domain.ErrInvalidRequest)
	}
	cart, err := s.carts.Get(ctx, id)
	if err != nil {
		return domain.BasketOptimizationResult{}, wrapCartNotFound(err, id)
	}
	if len(cart.Items) == 0 {
		return domain.BasketOptimizationResult{}, fmt.Errorf("%w: cart %s is empty", domain.ErrInvalidRequest, id)
	}
	return s.catalog.OptimizeBasket(ctx, cart.Lines())
}

// resolve attaches the current catalog entry to every line
func (s *CartService) resolve(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	for i := range cart.Items {
		entry, err := s.catalog.GetProduct(ctx, cart.Items[i].Reference)
		if errors.Is(err, domain.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cart.Items[i].Product = entry
	}
	return cart, nil
}

func wrapCartNotFound(err error, id string) error {
	if errors.Is(err, domain.ErrCartNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrCartNotFound, id)
	}
	return err
}
