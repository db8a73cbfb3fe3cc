package usecase

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/pricelens/backend/internal/domain"
)

// BasketOptimizer totals a basket per store, delivery included, and recommends
// the cheaper store. Equal totals always resolve to domain.PreferredStore.
type BasketOptimizer struct {
	deliveryFees map[domain.Store]decimal.Decimal
}

// NewBasketOptimizer creates an optimizer with one fixed delivery fee per store.
// Stores missing from fees are charged no delivery.
func NewBasketOptimizer(fees map[domain.Store]decimal.Decimal) *BasketOptimizer {
	copied := make(map[domain.Store]decimal.Decimal, len(fees))
	for store, fee := range fees {
		copied[store] = fee
	}
	return &BasketOptimizer{deliveryFees: copied}
}

// DeliveryFee returns the configured fee for store
func (o *BasketOptimizer) DeliveryFee(store domain.Store) decimal.Decimal {
	return o.deliveryFees[store]
}

// Optimize prices every line only in the store that sells it.
func (o *BasketOptimizer) Optimize(items []domain.BasketItem) (domain.BasketOptimizationResult, error) {
	subtotals := map[domain.Store]decimal.Decimal{
		domain.StoreLavka:   decimal.Zero,
		domain.StoreSamokat: decimal.Zero,
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			return domain.BasketOptimizationResult{}, fmt.Errorf("%w: quantity must be positive for %s", domain.ErrInvalidRequest, item.Entry.Reference)
		}
		if !item.Entry.Store.Valid() {
			return domain.BasketOptimizationResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownStore, item.Entry.Store)
		}

		price, ok := item.Entry.CurrentPrice()
		if !ok {
			log.Printf("[BASKET] Skipping %s item %q (%s): no price", item.Entry.Store, item.Entry.Title, item.Entry.Reference)
			continue
		}
		subtotals[item.Entry.Store] = subtotals[item.Entry.Store].Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	result := domain.BasketOptimizationResult{
		TotalLavka:   subtotals[domain.StoreLavka].Add(o.deliveryFees[domain.StoreLavka]),
		TotalSamokat: subtotals[domain.StoreSamokat].Add(o.deliveryFees[domain.StoreSamokat]),
	}
	result.RecommendedStore = cheaperStore(result.TotalLavka, result.TotalSamokat)

	return result, nil
}
