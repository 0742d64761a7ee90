package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/arlev/storefront-api/internal/model"
	"github.com/arlev/storefront-api/internal/repository"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderAccessDenied    = errors.New("access denied")
	ErrInvalidTransition    = errors.New("illegal status transition")
	ErrUnknownOrderStatus   = errors.New("unknown order status")
	ErrStatusChangeConflict = errors.New("order status changed concurrently")
)

type ShippingDetails struct {
	Address string
	City    string
	ZipCode string
	Country string
}

type OrderService struct {
	orderRepo repository.OrderRepository
	cartRepo  repository.CartRepository
	amqpCh    *amqp.Channel
}

func NewOrderService(orderRepo repository.OrderRepository, cartRepo repository.CartRepository, amqpCh *amqp.Channel) *OrderService {
	return &OrderService{orderRepo: orderRepo, cartRepo: cartRepo, amqpCh: amqpCh}
}

// Checkout turns the caller's cart into an immutable PENDING order.
//
// Prices are snapshotted from the cart read; the order total is the exact sum
// of line price times quantity. The availability pass below is advisory only
// and exists to report the first failing line with its quantities before any
// write happens. The binding stock check is the conditional decrement inside
// PlaceFromCart's transaction, so a race past the advisory check still rolls
// back the whole order.
func (s *OrderService) Checkout(ctx context.Context, userID uuid.UUID, shipping ShippingDetails) (*model.Order, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	cartWithItems, err := s.cartRepo.GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	if cartWithItems == nil || len(cartWithItems.Items) == 0 {
		return nil, ErrEmptyCart
	}

	for _, ci := range cartWithItems.Items {
		if ci.ProductStock < ci.Quantity {
			return nil, &repository.InsufficientStockError{
				ProductID: ci.ProductID,
				Requested: ci.Quantity,
				Available: ci.ProductStock,
			}
		}
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(cartWithItems.Items))
	for _, ci := range cartWithItems.Items {
		total = total.Add(ci.ProductPrice.Mul(decimal.NewFromInt(int64(ci.Quantity))))
		items = append(items, model.OrderItem{
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			Price:     ci.ProductPrice,
		})
	}

	order := &model.Order{
		UserID:     userID,
		Status:     model.OrderStatusPending,
		TotalPrice: total,
		Address:    shipping.Address,
		City:       shipping.City,
		ZipCode:    shipping.ZipCode,
		Country:    shipping.Country,
		Items:      items,
	}
	if err := s.orderRepo.PlaceFromCart(ctx, order, cart.ID); err != nil {
		return nil, err
	}

	s.publishOrderPlaced(ctx, order)
	return order, nil
}

// publishOrderPlaced is best effort; fulfillment lags, checkout does not fail.
func (s *OrderService) publishOrderPlaced(ctx context.Context, order *model.Order) {
	if s.amqpCh == nil {
		return
	}
	msg, _ := json.Marshal(model.OrderPlaced{OrderID: order.ID, UserID: order.UserID})
	_ = s.amqpCh.PublishWithContext(ctx, "", "orders", false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
}

func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID, role model.Role) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID && !role.AtLeast(model.RoleAdmin) {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.orderRepo.ListByUserID(ctx, userID)
}

func (s *OrderService) ListAll(ctx context.Context) ([]model.Order, error) {
	return s.orderRepo.ListAll(ctx)
}

// UpdateStatus enforces the transition graph:
// PENDING -> PROCESSING -> SHIPPED -> DELIVERED, with CANCELLED reachable
// from any non-terminal state.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, next model.OrderStatus) (*model.Order, error) {
	if !next.Valid() {
		return nil, ErrUnknownOrderStatus
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !order.Status.CanTransition(next) {
		return nil, ErrInvalidTransition
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, order.Status, next); err != nil {
		// The conditional update lost to a concurrent transition.
		return nil, ErrStatusChangeConflict
	}
	order.Status = next
	return order, nil
}
