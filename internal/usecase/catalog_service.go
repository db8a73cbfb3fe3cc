package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pricelens/backend/internal/domain"
)

// CatalogService serves read access to the catalog for the API and CLI
type CatalogService struct {
	catalog   domain.CatalogReader
	optimizer *BasketOptimizer
}

// NewCatalogService creates a catalog service
func NewCatalogService(catalog domain.CatalogReader, optimizer *BasketOptimizer) *CatalogService {
	return &CatalogService{
		catalog:   catalog,
		optimizer: optimizer,
	}
}

// ListProducts returns catalog entries ordered by title, optionally narrowed by store and title substring
func (s *CatalogService) ListProducts(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, error) {
	if filter.Store != "" && !filter.Store.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStore, filter.Store)
	}
	filter.Query = strings.TrimSpace(filter.Query)
	return s.catalog.List(ctx, filter)
}

// GetProduct returns a single entry by reference
func (s *CatalogService) GetProduct(ctx context.Context, reference string) (*domain.CatalogEntry, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", domain.ErrInvalidRequest)
	}
	return s.catalog.FindByReference(ctx, reference)
}

// OptimizeBasket resolves each line against the catalog and runs the basket optimizer.
// An unknown reference yields domain.ErrEntryNotFound.
func (s *CatalogService) OptimizeBasket(ctx context.Context, lines []domain.BasketLine) (domain.BasketOptimizationResult, error) {
	if len(lines) == 0 {
		return domain.BasketOptimizationResult{}, fmt.Errorf("%w: basket is empty", domain.ErrInvalidRequest)
	}

	items := make([]domain.BasketItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.BasketOptimizationResult{}, fmt.Errorf("%w: quantity must be positive for %s", domain.ErrInvalidRequest, line.Reference)
		}
		entry, err := s.GetProduct(ctx, line.Reference)
		if err != nil {
			if errors.Is(err, domain.ErrEntryNotFound) {
				return domain.BasketOptimizationResult{}, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, line.Reference)
			}
			return domain.BasketOptimizationResult{}, err
		}
		items = append(items, domain.BasketItem{Entry: *entry, Quantity: line.Quantity})
	}

	return s.optimizer.Optimize(items)
}
