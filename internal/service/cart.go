package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arlev/storefront-api/internal/dto"
	"github.com/arlev/storefront-api/internal/model"
	"github.com/arlev/storefront-api/internal/repository"
)

var (
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrWrongCart        = errors.New("item does not belong to this cart")
)

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

// GetCart never fails on a missing cart; one is created lazily.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return s.cartRepo.GetCartWithItems(ctx, cart.ID)
}

// AddItem accumulates quantity when the product is already in the cart.
// Stock is deliberately not checked here; checkout is the enforcement point.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return ErrProductNotFound
	}

	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get or create cart: %w", err)
	}

	return s.cartRepo.AddItem(ctx, &model.CartItem{
		CartID:    cart.ID,
		ProductID: productID,
		Quantity:  quantity,
	})
}

// UpdateItem overwrites the quantity; a quantity below 1 deletes the item.
// The item must belong to the caller's cart.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	if err := s.checkOwnership(ctx, userID, itemID); err != nil {
		return err
	}
	if quantity < 1 {
		return s.cartRepo.DeleteItem(ctx, itemID)
	}
	return s.cartRepo.UpdateItem(ctx, &model.CartItem{ID: itemID, Quantity: quantity})
}

func (s *CartService) DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error {
	if err := s.checkOwnership(ctx, userID, itemID); err != nil {
		return err
	}
	return s.cartRepo.DeleteItem(ctx, itemID)
}

// Clear is idempotent; clearing an already empty cart is a no-op.
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get or create cart: %w", err)
	}
	return s.cartRepo.ClearCart(ctx, cart.ID)
}

func (s *CartService) checkOwnership(ctx context.Context, userID, itemID uuid.UUID) error {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	cartWithItems, err := s.cartRepo.GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("get cart items: %w", err)
	}
	if !containsItem(cartWithItems.Items, itemID) {
		return ErrCartItemNotFound
	}
	return nil
}

func containsItem(items []model.CartItem, id uuid.UUID) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func ToCartResponse(cart *model.Cart) dto.CartResponse {
	items := make([]dto.CartItemResponse, 0, len(cart.Items))
	total := decimal.Zero
	for _, item := range cart.Items {
		items = append(items, dto.CartItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Price:     item.ProductPrice,
			Quantity:  item.Quantity,
			Stock:     item.ProductStock,
		})
		total = total.Add(item.ProductPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return dto.CartResponse{ID: cart.ID, Items: items, Total: total}
}
