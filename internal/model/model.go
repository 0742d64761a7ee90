package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is a strict hierarchy: USER < ADMIN < SUPERADMIN.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
)

var roleRank = map[Role]int{
	RoleUser:       0,
	RoleAdmin:      1,
	RoleSuperAdmin: 2,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r sits at or above min in the hierarchy.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

type User struct {
	ID             uuid.UUID
	Email          string
	Username       string
	Password       string
	FirstName      string
	LastName       string
	Role           Role
	PictureURL     string
	ResetToken     string
	ResetExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RefreshToken stores only the SHA-256 digest of the issued token.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

type Category struct {
	ID   uuid.UUID
	Name string
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  *uuid.UUID
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	// Resolved from products on read, not stored on the row.
	ProductName  string
	ProductPrice decimal.Decimal
	ProductStock int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransition reports whether the status may legally move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, t := range orderTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

type Order struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Status     OrderStatus
	TotalPrice decimal.Decimal
	Address    string
	City       string
	ZipCode    string
	Country    string
	Items      []OrderItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderItem carries the unit price captured at purchase time; it never
// changes even if the product's price does.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Price     decimal.Decimal
}

type Review struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProductID uuid.UUID
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// OrderPlaced is published to RabbitMQ after a successful checkout.
type OrderPlaced struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// SalesSummary aggregates order data for the admin dashboard. Cancelled
// orders are excluded from revenue.
type SalesSummary struct {
	TotalRevenue decimal.Decimal
	OrderCount   int
	TopProducts  []ProductSales
}

type ProductSales struct {
	ProductID uuid.UUID
	Name      string
	UnitsSold int
}
