// Package catalog holds the persisted product catalog implementations.
package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// MemoryStore is a thread-safe in-memory catalog. A batch holds the write lock
// from start to commit, so readers see either none or all of its writes.
type MemoryStore struct {
	entries map[string]domain.CatalogEntry
	mutex   sync.RWMutex
}

// NewMemoryStore creates an empty in-memory catalog
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]domain.CatalogEntry),
	}
}

// FindByReference returns the entry for reference or domain.ErrEntryNotFound
func (s *MemoryStore) FindByReference(ctx context.Context, reference string) (*domain.CatalogEntry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, ok := s.entries[reference]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return &entry, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) CountByStore(ctx context.Context, store domain.Store) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	count := 0
	for _, entry := range s.entries {
		if entry.Store == store {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MostRecentUpdate(ctx context.Context) (*time.Time, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.mostRecentUpdate(), nil
}

func (s *MemoryStore) mostRecentUpdate() *time.Time {
	var latest *time.Time
	for _, entry := range s.entries {
		if latest == nil || entry.LastUpdatedAt.After(*latest) {
			ts := entry.LastUpdatedAt
			latest = &ts
		}
	}
	return latest
}

// Stats reads every aggregate under one read lock
func (s *MemoryStore) Stats(ctx context.Context) (domain.IngestionStats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	perStore := make(map[domain.Store]int, len(domain.Stores))
	for _, entry := range s.entries {
		perStore[entry.Store]++
	}

	return domain.IngestionStats{
		TotalProducts:  len(s.entries),
		PerStoreCounts: perStore,
		LastUpdate:     s.mostRecentUpdate(),
	}, nil
}

func (s *MemoryStore) AllWithParseablePrice(ctx context.Context) ([]domain.CatalogEntry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []domain.CatalogEntry
	for _, entry := range s.entries {
		if entry.HasPrice() {
			result = append(result, entry)
		}
	}
	sortEntries(result)
	return result, nil
}

func (s *MemoryStore) List(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	query := strings.ToLower(filter.Query)

	var result []domain.CatalogEntry
	for _, entry := range s.entries {
		if filter.Store != "" && entry.Store != filter.Store {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(entry.Title), query) {
			continue
		}
		result = append(result, entry)
	}
	sortEntries(result)
	return result, nil
}

// InBatch stages the writes of fn and applies them only if fn succeeds
func (s *MemoryStore) InBatch(ctx context.Context, fn func(ctx context.Context, tx domain.CatalogTx) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx := &memoryTx{
		store:  s,
		staged: make(map[string]domain.CatalogEntry),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for reference, entry := range tx.staged {
		s.entries[reference] = entry
	}
	return nil
}

// Size returns the number of entries (for debugging/monitoring)
func (s *MemoryStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries)
}

// memoryTx reads through staged writes; the store's write lock is held by InBatch
type memoryTx struct {
	store  *MemoryStore
	staged map[string]domain.CatalogEntry
}

func (t *memoryTx) FindByReference(ctx context.Context, reference string) (*domain.CatalogEntry, error) {
	if entry, ok := t.staged[reference]; ok {
		return &entry, nil
	}
	entry, ok := t.store.entries[reference]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return &entry, nil
}

func (t *memoryTx) Upsert(ctx context.Context, entry *domain.CatalogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.staged[entry.Reference] = *entry
	return nil
}

// sortEntries orders by title, then reference
func sortEntries(entries []domain.CatalogEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Title != entries[j].Title {
			return entries[i].Title < entries[j].Title
		}
		return entries[i].Reference < entries[j].Reference
	})
}
