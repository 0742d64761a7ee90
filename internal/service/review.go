package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arlev/storefront-api/internal/dto"
	"github.com/arlev/storefront-api/internal/model"
	"github.com/arlev/storefront-api/internal/repository"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrDuplicateReview = errors.New("user already reviewed this product")
)

type ReviewService struct {
	reviewRepo  repository.ReviewRepository
	productRepo repository.ProductRepository
}

func NewReviewService(reviewRepo repository.ReviewRepository, productRepo repository.ProductRepository) *ReviewService {
	return &ReviewService{reviewRepo: reviewRepo, productRepo: productRepo}
}

// Create enforces at most one review per (user, product).
func (s *ReviewService) Create(ctx context.Context, userID, productID uuid.UUID, req dto.CreateReviewRequest) (*dto.ReviewResponse, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	existing, err := s.reviewRepo.GetByUserAndProduct(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("check review: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateReview
	}

	review := &model.Review{
		UserID:    userID,
		ProductID: productID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	if err := s.reviewRepo.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	resp := toReviewResponse(review)
	return &resp, nil
}

func (s *ReviewService) ListByProduct(ctx context.Context, productID uuid.UUID) (*dto.ReviewListResponse, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	reviews, avg, err := s.reviewRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	resp := &dto.ReviewListResponse{AverageRating: avg, Total: len(reviews)}
	for _, rv := range reviews {
		resp.Reviews = append(resp.Reviews, toReviewResponse(&rv))
	}
	return resp, nil
}

// Delete removes the caller's own review; ADMIN and above may remove any.
func (s *ReviewService) Delete(ctx context.Context, reviewID, callerID uuid.UUID, callerRole model.Role) error {
	review, err := s.reviewRepo.GetByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("get review: %w", err)
	}
	if review == nil {
		return ErrReviewNotFound
	}
	if review.UserID != callerID && !callerRole.AtLeast(model.RoleAdmin) {
		return ErrForbidden
	}
	return s.reviewRepo.Delete(ctx, reviewID)
}

func toReviewResponse(r *model.Review) dto.ReviewResponse {
	return dto.ReviewResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		ProductID: r.ProductID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}
