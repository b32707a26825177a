package repository

import (
	"context"
	"testing"
	"time"

	"stockroom/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProducts() []domain.Product {
	return []domain.Product{
		{
			ID:          "b6f1",
			Name:        "Pen",
			Price:       1.5,
			Category:    "Office",
			Description: "Blue ink",
			Stock:       10,
			CreatedAt:   time.Date(2025, time.March, 3, 10, 4, 5, 123456789, time.UTC),
		},
		{
			ID:          "1",
			Name:        "Wireless Mouse",
			Price:       29.99,
			Category:    "Electronics",
			Description: "Ergonomic wireless mouse with 2.4GHz connectivity",
			Stock:       150,
			CreatedAt:   time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		},
	}
}

func assertSameProducts(t *testing.T, want, got []domain.Product) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Fields(), got[i].Fields())
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt),
			"createdAt mismatch: want %s, got %s", want[i].CreatedAt, got[i].CreatedAt)
	}
}

// runRepositoryContract exercises the behaviour every adapter must share.
// newRepo must return a repository over a slot that has never been written.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) CollectionRepository) {
	ctx := context.Background()

	t.Run("absent before first save", func(t *testing.T) {
		repo := newRepo(t)

		products, ok, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, products)
	})

	t.Run("saved empty is distinct from absent", func(t *testing.T) {
		repo := newRepo(t)

		require.NoError(t, repo.Save(ctx, nil))
		products, ok, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotNil(t, products)
		assert.Empty(t, products)
	})

	t.Run("round trip preserves records and order", func(t *testing.T) {
		repo := newRepo(t)
		want := sampleProducts()

		require.NoError(t, repo.Save(ctx, want))
		got, ok, err := repo.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assertSameProducts(t, want, got)
	})

	t.Run("save replaces the whole collection", func(t *testing.T) {
		repo := newRepo(t)

		require.NoError(t, repo.Save(ctx, sampleProducts()))
		require.NoError(t, repo.Save(ctx, sampleProducts()[1:]))

		got, ok, err := repo.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assertSameProducts(t, sampleProducts()[1:], got)
	})

	t.Run("saving a loaded collection is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(ctx, sampleProducts()))

		first, _, err := repo.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, first))
		second, _, err := repo.Load(ctx)
		require.NoError(t, err)

		assertSameProducts(t, first, second)
	})
}
