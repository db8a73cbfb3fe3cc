package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// Values are opaque encoded payloads so that memory and Redis backends behave the same.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CatalogReader is the read side of the persisted catalog
type CatalogReader interface {
	FindByReference(ctx context.Context, reference string) (*CatalogEntry, error)
	Count(ctx context.Context) (int, error)
	CountByStore(ctx context.Context, store Store) (int, error)
	MostRecentUpdate(ctx context.Context) (*time.Time, error)
	// AllWithParseablePrice returns entries with a current price, ordered by title then reference
	AllWithParseablePrice(ctx context.Context) ([]CatalogEntry, error)
	List(ctx context.Context, filter CatalogFilter) ([]CatalogEntry, error)
	// Stats reads all aggregates from one consistent view of the catalog
	Stats(ctx context.Context) (IngestionStats, error)
}

// CatalogTx is the write scope handed out for one reconciliation batch.
// A failed Upsert affects only that entry; the rest of the batch can proceed.
type CatalogTx interface {
	FindByReference(ctx context.Context, reference string) (*CatalogEntry, error)
	Upsert(ctx context.Context, entry *CatalogEntry) error
}

// CatalogRepository is the catalog persistence capability.
// InBatch commits the writes of fn as one unit; readers observe either none or all of them.
// An error returned by fn, or a failure to open/commit the batch, discards the batch.
type CatalogRepository interface {
	CatalogReader
	InBatch(ctx context.Context, fn func(ctx context.Context, tx CatalogTx) error) error
}

// CartRepository persists saved baskets
type CartRepository interface {
	Create(ctx context.Context, cart *Cart) error
	// Get returns the cart or ErrCartNotFound
	Get(ctx context.Context, id string) (*Cart, error)
	// AddItem adds quantity to the line for reference, creating the line when absent.
	// The read-modify-write is atomic per cart.
	AddItem(ctx context.Context, id, reference string, quantity int, at time.Time) (*Cart, error)
}

// ScrapeAdapter scrapes one storefront into deduplicated product records
type ScrapeAdapter interface {
	Store() Store
	Scrape(ctx context.Context) ([]ProductRecord, error)
}
