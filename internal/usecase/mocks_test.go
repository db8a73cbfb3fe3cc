package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	data        map[string][]byte
	getError    error
	setError    error
	getCalls    int
	setCalls    int
	deleteCalls int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string][]byte),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	m.getCalls++
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.setCalls++
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.deleteCalls++
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

// MockCatalog is an in-memory domain.CatalogRepository with injectable failures
type MockCatalog struct {
	mu         sync.Mutex
	entries    map[string]domain.CatalogEntry
	failUpsert map[string]error // reference -> error returned by Upsert
	batchError error            // returned instead of running a batch
	readError  error
	batches    int
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		entries:    make(map[string]domain.CatalogEntry),
		failUpsert: make(map[string]error),
	}
}

func (m *MockCatalog) seed(entries ...domain.CatalogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		m.entries[entry.Reference] = entry
	}
}

func (m *MockCatalog) FindByReference(ctx context.Context, reference string) (*domain.CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(reference)
}

func (m *MockCatalog) find(reference string) (*domain.CatalogEntry, error) {
	if m.readError != nil {
		return nil, m.readError
	}
	entry, ok := m.entries[reference]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return &entry, nil
}

func (m *MockCatalog) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), m.readError
}

func (m *MockCatalog) CountByStore(ctx context.Context, store domain.Store) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.entries {
		if entry.Store == store {
			count++
		}
	}
	return count, m.readError
}

func (m *MockCatalog) MostRecentUpdate(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, entry := range m.entries {
		if latest == nil || entry.LastUpdatedAt.After(*latest) {
			ts := entry.LastUpdatedAt
			latest = &ts
		}
	}
	return latest, m.readError
}

func (m *MockCatalog) AllWithParseablePrice(ctx context.Context) ([]domain.CatalogEntry, error) {
	entries, err := m.List(ctx, domain.CatalogFilter{})
	if err != nil {
		return nil, err
	}
	var priced []domain.CatalogEntry
	for _, entry := range entries {
		if entry.HasPrice() {
			priced = append(priced, entry)
		}
	}
	return priced, nil
}

func (m *MockCatalog) List(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readError != nil {
		return nil, m.readError
	}
	var result []domain.CatalogEntry
	for _, entry := range m.entries {
		if filter.Store != "" && entry.Store != filter.Store {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(entry.Title), strings.ToLower(filter.Query)) {
			continue
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Title != result[j].Title {
			return result[i].Title < result[j].Title
		}
		return result[i].Reference < result[j].Reference
	})
	return result, nil
}

func (m *MockCatalog) Stats(ctx context.Context) (domain.IngestionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readError != nil {
		return domain.IngestionStats{}, m.readError
	}
	stats := domain.IngestionStats{PerStoreCounts: make(map[domain.Store]int)}
	for _, entry := range m.entries {
		stats.TotalProducts++
		stats.PerStoreCounts[entry.Store]++
		if stats.LastUpdate == nil || entry.LastUpdatedAt.After(*stats.LastUpdate) {
			ts := entry.LastUpdatedAt
			stats.LastUpdate = &ts
		}
	}
	return stats, nil
}

func (m *MockCatalog) InBatch(ctx context.Context, fn func(ctx context.Context, tx domain.CatalogTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.batchError != nil {
		return m.batchError
	}

	staged := make(map[string]domain.CatalogEntry, len(m.entries))
	for ref, entry := range m.entries {
		staged[ref] = entry
	}
	tx := &mockTx{catalog: m, staged: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.entries = staged
	return nil
}

func (m *MockCatalog) snapshot() map[string]domain.CatalogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]domain.CatalogEntry, len(m.entries))
	for ref, entry := range m.entries {
		copied[ref] = entry
	}
	return copied
}

type mockTx struct {
	catalog *MockCatalog
	staged  map[string]domain.CatalogEntry
}

func (t *mockTx) FindByReference(ctx context.Context, reference string) (*domain.CatalogEntry, error) {
	entry, ok := t.staged[reference]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return &entry, nil
}

func (t *mockTx) Upsert(ctx context.Context, entry *domain.CatalogEntry) error {
	if err := t.catalog.failUpsert[entry.Reference]; err != nil {
		return err
	}
	t.staged[entry.Reference] = *entry
	return nil
}

// MockAdapter is a scripted domain.ScrapeAdapter
type MockAdapter struct {
	store   domain.Store
	records []domain.ProductRecord
	err     error
	block   chan struct{} // when set, Scrape waits on it or ctx
	mu      sync.Mutex
	calls   int
}

func (m *MockAdapter) Store() domain.Store {
	return m.store
}

func (m *MockAdapter) Scrape(ctx context.Context) ([]domain.ProductRecord, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

func (m *MockAdapter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var errMockStorage = errors.New("disk full")

// MockCartRepository is an in-memory domain.CartRepository with injectable failures
type MockCartRepository struct {
	mu       sync.Mutex
	carts    map[string]*domain.Cart
	getError error
}

func NewMockCartRepository() *MockCartRepository {
	return &MockCartRepository{carts: make(map[string]*domain.Cart)}
}

func (m *MockCartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *cart
	copied.Items = append([]domain.CartItem{}, cart.Items...)
	m.carts[cart.ID] = &copied
	return nil
}

func (m *MockCartRepository) Get(ctx context.Context, id string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	cart, ok := m.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	copied := *cart
	copied.Items = append([]domain.CartItem{}, cart.Items...)
	return &copied, nil
}

func (m *MockCartRepository) AddItem(ctx context.Context, id, reference string, quantity int, at time.Time) (*domain.Cart, error) {
	m.mu.Lock()
	cart, ok := m.carts[id]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrCartNotFound
	}
	found := false
	for i := range cart.Items {
		if cart.Items[i].Reference == reference {
			cart.Items[i].Quantity += quantity
			found = true
		}
	}
	if !found {
		cart.Items = append(cart.Items, domain.CartItem{Reference: reference, Quantity: quantity, AddedAt: at})
	}
	cart.UpdatedAt = at
	m.mu.Unlock()
	return m.Get(ctx, id)
}
