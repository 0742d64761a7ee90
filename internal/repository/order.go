package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arlev/storefront-api/internal/model"
)

type OrderRepository interface {
	// PlaceFromCart persists the order and its items, decrements stock per
	// line and clears the cart, all inside one transaction. On any failure
	// nothing survives, including the order row.
	PlaceFromCart(ctx context.Context, order *model.Order, cartID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	ListAll(ctx context.Context) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error
	SalesSummary(ctx context.Context, topN int) (*model.SalesSummary, error)
}

type pgOrderRepo struct {
	pool        *pgxpool.Pool
	productRepo ProductRepository
	cartRepo    CartRepository
}

func NewOrderRepository(pool *pgxpool.Pool, productRepo ProductRepository, cartRepo CartRepository) OrderRepository {
	return &pgOrderRepo{pool: pool, productRepo: productRepo, cartRepo: cartRepo}
}

func (r *pgOrderRepo) PlaceFromCart(ctx context.Context, order *model.Order, cartID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	order.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, status, total_price, address, city, zip_code, country, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.UserID, order.Status, order.TotalPrice,
		order.Address, order.City, order.ZipCode, order.Country,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price, created_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())`,
			order.Items[i].ID, order.Items[i].OrderID, order.Items[i].ProductID,
			order.Items[i].Quantity, order.Items[i].Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}

		// The conditional decrement is the only binding stock check; a
		// failure here rolls back the order and every prior decrement.
		if err = r.productRepo.DecrementStock(ctx, tx, order.Items[i].ProductID, order.Items[i].Quantity); err != nil {
			return err
		}
	}

	if err = r.cartRepo.ClearCartTx(ctx, tx, cartID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order := &model.Order{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, status, total_price, address, city, zip_code, country, created_at, updated_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&order.ID, &order.UserID, &order.Status, &order.TotalPrice,
		&order.Address, &order.City, &order.ZipCode, &order.Country,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, quantity, price FROM order_items WHERE order_id = $1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	return order, nil
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, status, total_price, address, city, zip_code, country, created_at, updated_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		o.UserID = userID
		if err := rows.Scan(&o.ID, &o.Status, &o.TotalPrice,
			&o.Address, &o.City, &o.ZipCode, &o.Country,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *pgOrderRepo) ListAll(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, status, total_price, address, city, zip_code, country, created_at, updated_at
		 FROM orders ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalPrice,
			&o.Address, &o.City, &o.ZipCode, &o.Country,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// UpdateStatus is conditional on the current status so two concurrent
// transitions cannot both win.
func (r *pgOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		id, to, from,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgOrderRepo) SalesSummary(ctx context.Context, topN int) (*model.SalesSummary, error) {
	summary := &model.SalesSummary{TotalRevenue: decimal.Zero}
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_price), 0), COUNT(*) FROM orders WHERE status <> $1`,
		model.OrderStatusCancelled,
	).Scan(&summary.TotalRevenue, &summary.OrderCount)
	if err != nil {
		return nil, fmt.Errorf("sales totals: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT oi.product_id, p.name, SUM(oi.quantity)::int AS units
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id AND o.status <> $1
		 JOIN products p ON p.id = oi.product_id
		 GROUP BY oi.product_id, p.name
		 ORDER BY units DESC
		 LIMIT $2`,
		model.OrderStatusCancelled, topN,
	)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ps model.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.UnitsSold); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		summary.TopProducts = append(summary.TopProducts, ps)
	}
	return summary, nil
}
