//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlev/storefront-api/internal/model"
)

func TestProductRepository_CRUD(t *testing.T) {
	cleanupTable(t, "reviews", "order_items", "orders", "cart_items", "carts", "products", "categories")

	repo := NewProductRepository(testPool)
	ctx := context.Background()

	p := &model.Product{
		Name: "Integration Test Product", Description: "test",
		Price: decimal.NewFromFloat(19.99), Stock: 50,
	}
	require.NoError(t, repo.Create(ctx, p))
	assert.NotEmpty(t, p.ID)

	found, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.Name, found.Name)
	assert.True(t, p.Price.Equal(found.Price))

	found.Stock = 42
	require.NoError(t, repo.Update(ctx, found))

	updated, _ := repo.GetByID(ctx, p.ID)
	assert.Equal(t, 42, updated.Stock)

	require.NoError(t, repo.Delete(ctx, p.ID))

	deleted, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestProductRepository_ListFilters(t *testing.T) {
	cleanupTable(t, "reviews", "order_items", "orders", "cart_items", "carts", "products", "categories")

	productRepo := NewProductRepository(testPool)
	categoryRepo := NewCategoryRepository(testPool)
	ctx := context.Background()

	category := &model.Category{Name: "Books"}
	require.NoError(t, categoryRepo.Create(ctx, category))

	book := &model.Product{
		Name: "Go Programming", Description: "a book",
		Price: decimal.NewFromFloat(30.00), Stock: 5, CategoryID: &category.ID,
	}
	require.NoError(t, productRepo.Create(ctx, book))

	gadget := &model.Product{
		Name: "Widget", Description: "a gadget",
		Price: decimal.NewFromFloat(9.99), Stock: 100,
	}
	require.NoError(t, productRepo.Create(ctx, gadget))

	// Search by name
	products, total, err := productRepo.List(ctx, 10, 0, "program", nil, "created_at", "desc")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, products, 1)
	assert.Equal(t, book.ID, products[0].ID)

	// Filter by category
	products, total, err = productRepo.List(ctx, 10, 0, "", &category.ID, "created_at", "desc")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, products, 1)
	assert.Equal(t, book.ID, products[0].ID)

	// Sort by price ascending
	products, _, err = productRepo.List(ctx, 10, 0, "", nil, "price", "asc")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, gadget.ID, products[0].ID)
}

func TestProductRepository_DecrementStockGuard(t *testing.T) {
	cleanupTable(t, "reviews", "order_items", "orders", "cart_items", "carts", "products", "categories")

	repo := NewProductRepository(testPool)
	ctx := context.Background()

	p := &model.Product{
		Name: "Scarce", Description: "test",
		Price: decimal.NewFromFloat(5.00), Stock: 2,
	}
	require.NoError(t, repo.Create(ctx, p))

	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.DecrementStock(ctx, tx, p.ID, 2))
	require.NoError(t, tx.Commit(ctx))

	// Stock is exhausted; the conditional update refuses to go negative.
	tx, err = testPool.Begin(ctx)
	require.NoError(t, err)
	err = repo.DecrementStock(ctx, tx, p.ID, 1)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, p.ID, stockErr.ProductID)
	assert.Equal(t, 0, stockErr.Available)
	require.NoError(t, tx.Rollback(ctx))

	final, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.Stock)
}
