package domain

import "time"

// CartItem is one line of a saved basket. Product is resolved from the catalog
// on read and is nil when the reference is no longer in the catalog.
type CartItem struct {
	Reference string        `json:"reference"`
	Quantity  int           `json:"quantity"`
	AddedAt   time.Time     `json:"addedAt"`
	Product   *CatalogEntry `json:"product,omitempty"`
}

// Cart is a saved basket. Items keep the order in which references were first added.
type Cart struct {
	ID        string     `json:"id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Lines returns the cart as basket lines for the optimizer
func (c *Cart) Lines() []BasketLine {
	lines := make([]BasketLine, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, BasketLine{Reference: item.Reference, Quantity: item.Quantity})
	}
	return lines
}
