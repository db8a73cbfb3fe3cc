package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// Reconciler merges freshly scraped records into the persisted catalog.
// Batches are serialized so that the read-modify-write of one reference never
// interleaves with another batch touching the same reference.
type Reconciler struct {
	catalog domain.CatalogRepository
	now     func() time.Time
	mu      sync.Mutex
}

// NewReconciler creates a reconciler writing to the given catalog
func NewReconciler(catalog domain.CatalogRepository) *Reconciler {
	return &Reconciler{
		catalog: catalog,
		now:     time.Now,
	}
}

// Reconcile inserts unknown references and updates known ones in a single batch.
// Record-level failures are logged and counted in Failed; only a failure of the
// whole batch (storage unavailable, cancelled context) is returned as an error.
func (r *Reconciler) Reconcile(ctx context.Context, records []domain.ProductRecord) (domain.ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result domain.ReconcileResult
	if len(records) == 0 {
		return result, nil
	}

	err := r.catalog.InBatch(ctx, func(ctx context.Context, tx domain.CatalogTx) error {
		result = domain.ReconcileResult{}
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}

			inserted, err := r.reconcileOne(ctx, tx, record)
			if err != nil {
				if errors.Is(err, domain.ErrStorageUnavailable) {
					return err
				}
				log.Printf("[RECONCILE] Skipping %s record %q (%s): %v", record.Store, record.Title, record.Reference, err)
				result.Failed++
				continue
			}
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) || ctx.Err() != nil {
			return domain.ReconcileResult{}, err
		}
		return domain.ReconcileResult{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	log.Printf("[RECONCILE] Products processed: %d new, %d updated, %d failed", result.Inserted, result.Updated, result.Failed)
	return result, nil
}

// reconcileOne writes a single record and reports whether it created a new entry
func (r *Reconciler) reconcileOne(ctx context.Context, tx domain.CatalogTx, record domain.ProductRecord) (bool, error) {
	if strings.TrimSpace(record.Reference) == "" {
		return false, fmt.Errorf("%w: empty reference", domain.ErrInvalidRequest)
	}
	if !record.Store.Valid() {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownStore, record.Store)
	}

	existing, err := tx.FindByReference(ctx, record.Reference)
	if err != nil && !errors.Is(err, domain.ErrEntryNotFound) {
		return false, err
	}

	entry := &domain.CatalogEntry{}
	inserted := existing == nil
	if !inserted {
		if existing.Store != record.Store {
			return false, fmt.Errorf("%w: catalog has %s", domain.ErrStoreMismatch, existing.Store)
		}
		entry = existing
	}

	applyRecord(entry, record, r.now())

	if err := tx.Upsert(ctx, entry); err != nil {
		return false, err
	}
	return inserted, nil
}

// applyRecord overwrites the scraped fields of entry and re-derives its prices
func applyRecord(entry *domain.CatalogEntry, record domain.ProductRecord, now time.Time) {
	entry.ProductRecord = record
	entry.OldPriceAmount = parseNullablePrice(record.RawOldPrice)
	entry.NewPriceAmount = parseNullablePrice(record.RawNewPrice)
	entry.LastUpdatedAt = now
}
