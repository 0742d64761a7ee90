package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arlev/storefront-api/internal/model"
)

type ReviewRepository interface {
	Create(ctx context.Context, review *model.Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error)
	GetByUserAndProduct(ctx context.Context, userID, productID uuid.UUID) (*model.Review, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Review, float64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type pgReviewRepo struct{ pool *pgxpool.Pool }

func NewReviewRepository(pool *pgxpool.Pool) ReviewRepository {
	return &pgReviewRepo{pool: pool}
}

func (r *pgReviewRepo) Create(ctx context.Context, review *model.Review) error {
	review.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (id, user_id, product_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING created_at`,
		review.ID, review.UserID, review.ProductID, review.Rating, review.Comment,
	).Scan(&review.CreatedAt)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (r *pgReviewRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	review := &model.Review{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, product_id, rating, comment, created_at FROM reviews WHERE id = $1`, id,
	).Scan(&review.ID, &review.UserID, &review.ProductID, &review.Rating, &review.Comment, &review.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return review, nil
}

func (r *pgReviewRepo) GetByUserAndProduct(ctx context.Context, userID, productID uuid.UUID) (*model.Review, error) {
	review := &model.Review{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, product_id, rating, comment, created_at
		 FROM reviews WHERE user_id = $1 AND product_id = $2`, userID, productID,
	).Scan(&review.ID, &review.UserID, &review.ProductID, &review.Rating, &review.Comment, &review.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get review by user and product: %w", err)
	}
	return review, nil
}

func (r *pgReviewRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]model.Review, float64, error) {
	var avg float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE product_id = $1`, productID,
	).Scan(&avg)
	if err != nil {
		return nil, 0, fmt.Errorf("average rating: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, product_id, rating, comment, created_at
		 FROM reviews WHERE product_id = $1 ORDER BY created_at DESC`, productID,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var rv model.Review
		if err := rows.Scan(&rv.ID, &rv.UserID, &rv.ProductID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	return reviews, avg, nil
}

func (r *pgReviewRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
