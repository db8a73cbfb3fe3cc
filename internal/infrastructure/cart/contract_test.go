package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
)

var contractStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newCart(id string) *domain.Cart {
	return &domain.Cart{ID: id, CreatedAt: contractStart, UpdatedAt: contractStart}
}

// runCartContract checks the behavior every domain.CartRepository must share
func runCartContract(t *testing.T, repo domain.CartRepository) {
	ctx := context.Background()

	t.Run("unknown cart", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrCartNotFound)

		_, err = repo.AddItem(ctx, "missing", "ref", 1, contractStart)
		assert.ErrorIs(t, err, domain.ErrCartNotFound)
	})

	t.Run("new cart is empty", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newCart("empty")))

		got, err := repo.Get(ctx, "empty")
		require.NoError(t, err)
		assert.Equal(t, "empty", got.ID)
		assert.NotNil(t, got.Items)
		assert.Empty(t, got.Items)
		assert.True(t, got.CreatedAt.Equal(contractStart))
	})

	t.Run("add merges quantity per reference", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newCart("merge")))

		_, err := repo.AddItem(ctx, "merge", "water", 2, contractStart.Add(time.Minute))
		require.NoError(t, err)
		_, err = repo.AddItem(ctx, "merge", "juice", 1, contractStart.Add(2*time.Minute))
		require.NoError(t, err)
		got, err := repo.AddItem(ctx, "merge", "water", 3, contractStart.Add(3*time.Minute))
		require.NoError(t, err)

		require.Len(t, got.Items, 2)
		assert.Equal(t, "water", got.Items[0].Reference)
		assert.Equal(t, 5, got.Items[0].Quantity)
		assert.True(t, got.Items[0].AddedAt.Equal(contractStart.Add(time.Minute)), "merging keeps the first add time")
		assert.Equal(t, "juice", got.Items[1].Reference)
		assert.Equal(t, 1, got.Items[1].Quantity)
		assert.True(t, got.UpdatedAt.Equal(contractStart.Add(3*time.Minute)))

		reread, err := repo.Get(ctx, "merge")
		require.NoError(t, err)
		assert.Equal(t, got.Lines(), reread.Lines())
	})

	t.Run("concurrent adds are not lost", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newCart("concurrent")))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.AddItem(ctx, "concurrent", "water", 1, contractStart)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.Get(ctx, "concurrent")
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, 20, got.Items[0].Quantity)
	})
}
