package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlev/storefront-api/internal/model"
)

type mockCartRepo struct {
	mu    sync.Mutex
	carts map[uuid.UUID]*model.Cart
	items map[uuid.UUID]*model.CartItem
	// When set, GetCartWithItems resolves product snapshots like the SQL join.
	products *mockProductRepo
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[uuid.UUID]*model.Cart), items: make(map[uuid.UUID]*model.CartItem)}
}

func (m *mockCartRepo) GetOrCreateCart(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.UserID == userID {
			return c, nil
		}
	}
	cart := &model.Cart{ID: uuid.New(), UserID: userID}
	m.carts[cart.ID] = cart
	return cart, nil
}

func (m *mockCartRepo) GetCartWithItems(_ context.Context, cartID uuid.UUID) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, nil
	}
	cart.Items = nil
	for _, item := range m.items {
		if item.CartID != cartID {
			continue
		}
		resolved := *item
		if m.products != nil {
			m.products.mu.Lock()
			if p, ok := m.products.products[item.ProductID]; ok {
				resolved.ProductName = p.Name
				resolved.ProductPrice = p.Price
				resolved.ProductStock = p.Stock
			}
			m.products.mu.Unlock()
		}
		cart.Items = append(cart.Items, resolved)
	}
	return cart, nil
}

// AddItem accumulates quantity per (cart, product), mirroring the upsert.
func (m *mockCartRepo) AddItem(_ context.Context, item *model.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			item.ID = existing.ID
			return nil
		}
	}
	item.ID = uuid.New()
	m.items[item.ID] = item
	return nil
}

func (m *mockCartRepo) UpdateItem(_ context.Context, item *model.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.items[item.ID]; ok {
		existing.Quantity = item.Quantity
	}
	return nil
}

func (m *mockCartRepo) DeleteItem(_ context.Context, itemID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemID)
	return nil
}

func (m *mockCartRepo) ClearCart(_ context.Context, cartID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(cartID)
	return nil
}

func (m *mockCartRepo) ClearCartTx(_ context.Context, _ pgx.Tx, cartID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(cartID)
	return nil
}

func (m *mockCartRepo) clearLocked(cartID uuid.UUID) {
	for id, item := range m.items {
		if item.CartID == cartID {
			delete(m.items, id)
		}
	}
}

func TestCartService_AddItem(t *testing.T) {
	cartRepo := newMockCartRepo()
	productRepo := newMockProductRepo()
	pid := uuid.New()
	productRepo.products[pid] = &model.Product{ID: pid, Stock: 100}
	svc := NewCartService(cartRepo, productRepo)
	err := svc.AddItem(context.Background(), uuid.New(), pid, 2)
	require.NoError(t, err)
	assert.Len(t, cartRepo.items, 1)
}

func TestCartService_AddItem_Accumulates(t *testing.T) {
	cartRepo := newMockCartRepo()
	productRepo := newMockProductRepo()
	pid := uuid.New()
	productRepo.products[pid] = &model.Product{ID: pid, Stock: 100}
	svc := NewCartService(cartRepo, productRepo)
	userID := uuid.New()

	require.NoError(t, svc.AddItem(context.Background(), userID, pid, 2))
	require.NoError(t, svc.AddItem(context.Background(), userID, pid, 3))

	require.Len(t, cartRepo.items, 1)
	for _, item := range cartRepo.items {
		assert.Equal(t, 5, item.Quantity)
	}
}

func TestCartService_AddItem_ProductNotFound(t *testing.T) {
	svc := NewCartService(newMockCartRepo(), newMockProductRepo())
	err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 2)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCartService_UpdateItem_ZeroQuantityDeletes(t *testing.T) {
	cartRepo := newMockCartRepo()
	productRepo := newMockProductRepo()
	svc := NewCartService(cartRepo, productRepo)
	userID := uuid.New()
	cart, _ := cartRepo.GetOrCreateCart(context.Background(), userID)
	item := &model.CartItem{ID: uuid.New(), CartID: cart.ID, ProductID: uuid.New(), Quantity: 3}
	cartRepo.items[item.ID] = item

	require.NoError(t, svc.UpdateItem(context.Background(), userID, item.ID, 0))
	assert.Empty(t, cartRepo.items)

	fetched, err := svc.GetCart(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, fetched.Items)
}

func TestCartService_UpdateItem_ForeignItemRejected(t *testing.T) {
	cartRepo := newMockCartRepo()
	svc := NewCartService(cartRepo, newMockProductRepo())

	owner := uuid.New()
	cart, _ := cartRepo.GetOrCreateCart(context.Background(), owner)
	item := &model.CartItem{ID: uuid.New(), CartID: cart.ID, ProductID: uuid.New(), Quantity: 1}
	cartRepo.items[item.ID] = item

	err := svc.UpdateItem(context.Background(), uuid.New(), item.ID, 5)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
	assert.Equal(t, 1, cartRepo.items[item.ID].Quantity)
}

func TestCartService_DeleteItem(t *testing.T) {
	cartRepo := newMockCartRepo()
	svc := NewCartService(cartRepo, newMockProductRepo())
	userID := uuid.New()
	cart, _ := cartRepo.GetOrCreateCart(context.Background(), userID)
	item := &model.CartItem{ID: uuid.New(), CartID: cart.ID, ProductID: uuid.New(), Quantity: 1}
	cartRepo.items[item.ID] = item
	err := svc.DeleteItem(context.Background(), userID, item.ID)
	require.NoError(t, err)
	assert.Empty(t, cartRepo.items)
}

func TestCartService_Clear_Idempotent(t *testing.T) {
	cartRepo := newMockCartRepo()
	svc := NewCartService(cartRepo, newMockProductRepo())
	userID := uuid.New()

	require.NoError(t, svc.Clear(context.Background(), userID))
	require.NoError(t, svc.Clear(context.Background(), userID))
}

func TestToCartResponse_Total(t *testing.T) {
	cart := &model.Cart{
		ID: uuid.New(),
		Items: []model.CartItem{
			{ID: uuid.New(), ProductPrice: decimal.NewFromFloat(10.00), Quantity: 2},
			{ID: uuid.New(), ProductPrice: decimal.NewFromFloat(5.00), Quantity: 1},
		},
	}
	resp := ToCartResponse(cart)
	assert.True(t, resp.Total.Equal(decimal.NewFromFloat(25.00)))
}
