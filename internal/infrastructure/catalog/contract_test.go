package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
)

func testEntry(reference string, store domain.Store, title, newPrice string, updated time.Time) domain.CatalogEntry {
	entry := domain.CatalogEntry{
		ProductRecord: domain.ProductRecord{
			Reference:   reference,
			Title:       title,
			RawNewPrice: newPrice,
			Store:       store,
		},
		LastUpdatedAt: updated,
	}
	if newPrice != "" {
		entry.NewPriceAmount = decimal.NewNullDecimal(decimal.RequireFromString(newPrice))
	}
	return entry
}

func upsertAll(t *testing.T, repo domain.CatalogRepository, entries ...domain.CatalogEntry) {
	t.Helper()
	err := repo.InBatch(context.Background(), func(ctx context.Context, tx domain.CatalogTx) error {
		for i := range entries {
			if err := tx.Upsert(ctx, &entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// runCatalogContract checks the behavior every domain.CatalogRepository must share.
// repo must start empty.
func runCatalogContract(t *testing.T, repo domain.CatalogRepository) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty catalog", func(t *testing.T) {
		_, err := repo.FindByReference(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)

		latest, err := repo.MostRecentUpdate(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalProducts)
	})

	upsertAll(t, repo,
		testEntry("l-water", domain.StoreLavka, "Вода Архыз", "69.90", base),
		testEntry("l-juice", domain.StoreLavka, "Сок яблочный", "", base.Add(time.Minute)),
		testEntry("s-water", domain.StoreSamokat, "Вода Архыз", "74.00", base.Add(2*time.Minute)),
	)

	t.Run("find by reference", func(t *testing.T) {
		entry, err := repo.FindByReference(ctx, "l-water")
		require.NoError(t, err)
		assert.Equal(t, "Вода Архыз", entry.Title)
		assert.Equal(t, domain.StoreLavka, entry.Store)
		assert.True(t, entry.NewPriceAmount.Decimal.Equal(decimal.RequireFromString("69.9")))
		assert.False(t, entry.OldPriceAmount.Valid)
		assert.True(t, entry.LastUpdatedAt.Equal(base))
	})

	t.Run("counts and stats agree", func(t *testing.T) {
		total, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		lavka, err := repo.CountByStore(ctx, domain.StoreLavka)
		require.NoError(t, err)
		assert.Equal(t, 2, lavka)

		latest, err := repo.MostRecentUpdate(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.True(t, latest.Equal(base.Add(2*time.Minute)))

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalProducts)
		assert.Equal(t, 2, stats.PerStoreCounts[domain.StoreLavka])
		assert.Equal(t, 1, stats.PerStoreCounts[domain.StoreSamokat])
		require.NotNil(t, stats.LastUpdate)
		assert.True(t, stats.LastUpdate.Equal(*latest))
	})

	t.Run("priced entries ordered by title then reference", func(t *testing.T) {
		entries, err := repo.AllWithParseablePrice(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "l-water", entries[0].Reference)
		assert.Equal(t, "s-water", entries[1].Reference)
	})

	t.Run("list filters", func(t *testing.T) {
		all, err := repo.List(ctx, domain.CatalogFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		samokat, err := repo.List(ctx, domain.CatalogFilter{Store: domain.StoreSamokat})
		require.NoError(t, err)
		require.Len(t, samokat, 1)
		assert.Equal(t, "s-water", samokat[0].Reference)

		water, err := repo.List(ctx, domain.CatalogFilter{Query: "Архыз"})
		require.NoError(t, err)
		assert.Len(t, water, 2)

		literal, err := repo.List(ctx, domain.CatalogFilter{Query: "%"})
		require.NoError(t, err)
		assert.Empty(t, literal)
	})

	t.Run("upsert updates in place", func(t *testing.T) {
		updated := testEntry("l-water", domain.StoreLavka, "Вода Архыз 1,5 л", "", base.Add(time.Hour))
		updated.OldPriceAmount = decimal.NewNullDecimal(decimal.RequireFromString("89"))
		upsertAll(t, repo, updated)

		entry, err := repo.FindByReference(ctx, "l-water")
		require.NoError(t, err)
		assert.Equal(t, "Вода Архыз 1,5 л", entry.Title)
		assert.False(t, entry.NewPriceAmount.Valid)
		assert.True(t, entry.OldPriceAmount.Decimal.Equal(decimal.NewFromInt(89)))

		total, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})

	t.Run("batch reads its own writes", func(t *testing.T) {
		err := repo.InBatch(ctx, func(ctx context.Context, tx domain.CatalogTx) error {
			entry := testEntry("s-new", domain.StoreSamokat, "Новинка", "10", base)
			if err := tx.Upsert(ctx, &entry); err != nil {
				return err
			}
			found, err := tx.FindByReference(ctx, "s-new")
			if err != nil {
				return err
			}
			assert.Equal(t, "Новинка", found.Title)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("failed batch is discarded", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.InBatch(ctx, func(ctx context.Context, tx domain.CatalogTx) error {
			entry := testEntry("s-ghost", domain.StoreSamokat, "Призрак", "1", base)
			if err := tx.Upsert(ctx, &entry); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = repo.FindByReference(ctx, "s-ghost")
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	})
}
