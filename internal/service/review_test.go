package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlev/storefront-api/internal/dto"
	"github.com/arlev/storefront-api/internal/model"
)

type mockReviewRepo struct {
	reviews map[uuid.UUID]*model.Review
}

func newMockReviewRepo() *mockReviewRepo {
	return &mockReviewRepo{reviews: make(map[uuid.UUID]*model.Review)}
}

func (m *mockReviewRepo) Create(_ context.Context, review *model.Review) error {
	review.ID = uuid.New()
	review.CreatedAt = time.Now()
	m.reviews[review.ID] = review
	return nil
}

func (m *mockReviewRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Review, error) {
	if r, ok := m.reviews[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *mockReviewRepo) GetByUserAndProduct(_ context.Context, userID, productID uuid.UUID) (*model.Review, error) {
	for _, r := range m.reviews {
		if r.UserID == userID && r.ProductID == productID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockReviewRepo) ListByProduct(_ context.Context, productID uuid.UUID) ([]model.Review, float64, error) {
	var reviews []model.Review
	sum := 0
	for _, r := range m.reviews {
		if r.ProductID == productID {
			reviews = append(reviews, *r)
			sum += r.Rating
		}
	}
	avg := 0.0
	if len(reviews) > 0 {
		avg = float64(sum) / float64(len(reviews))
	}
	return reviews, avg, nil
}

func (m *mockReviewRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.reviews, id)
	return nil
}

func newReviewFixture() (*ReviewService, *mockReviewRepo, *mockProductRepo) {
	reviewRepo := newMockReviewRepo()
	productRepo := newMockProductRepo()
	return NewReviewService(reviewRepo, productRepo), reviewRepo, productRepo
}

func TestReviewService_Create(t *testing.T) {
	svc, _, productRepo := newReviewFixture()
	pid := uuid.New()
	productRepo.products[pid] = &model.Product{ID: pid}

	resp, err := svc.Create(context.Background(), uuid.New(), pid, dto.CreateReviewRequest{
		Rating: 4, Comment: "solid",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Rating)
	assert.Equal(t, pid, resp.ProductID)
}

func TestReviewService_Create_ProductNotFound(t *testing.T) {
	svc, _, _ := newReviewFixture()
	_, err := svc.Create(context.Background(), uuid.New(), uuid.New(), dto.CreateReviewRequest{Rating: 3})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestReviewService_Create_Duplicate(t *testing.T) {
	svc, reviewRepo, productRepo := newReviewFixture()
	pid := uuid.New()
	productRepo.products[pid] = &model.Product{ID: pid}
	userID := uuid.New()

	_, err := svc.Create(context.Background(), userID, pid, dto.CreateReviewRequest{Rating: 5})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), userID, pid, dto.CreateReviewRequest{Rating: 1})
	assert.ErrorIs(t, err, ErrDuplicateReview)
	assert.Len(t, reviewRepo.reviews, 1)

	// A different user may still review the same product.
	_, err = svc.Create(context.Background(), uuid.New(), pid, dto.CreateReviewRequest{Rating: 2})
	assert.NoError(t, err)
}

func TestReviewService_ListByProduct(t *testing.T) {
	svc, _, productRepo := newReviewFixture()
	pid := uuid.New()
	productRepo.products[pid] = &model.Product{ID: pid}

	_, err := svc.Create(context.Background(), uuid.New(), pid, dto.CreateReviewRequest{Rating: 5})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), uuid.New(), pid, dto.CreateReviewRequest{Rating: 2})
	require.NoError(t, err)

	resp, err := svc.ListByProduct(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	assert.InDelta(t, 3.5, resp.AverageRating, 0.001)
}

func TestReviewService_Delete_Own(t *testing.T) {
	svc, reviewRepo, productRepo := newReviewFixture()
	pid := uuid.New()
	productRepo.products[pid] = &model.Product{ID: pid}
	userID := uuid.New()

	resp, err := svc.Create(context.Background(), userID, pid, dto.CreateReviewRequest{Rating: 3})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), resp.ID, userID, model.RoleUser))
	assert.Empty(t, reviewRepo.reviews)
}

func TestReviewService_Delete_ForeignForbidden(t *testing.T) {
	svc, reviewRepo, productRepo := newReviewFixture()
	pid := uuid.New()
	productRepo.products[pid] = &model.Product{ID: pid}

	resp, err := svc.Create(context.Background(), uuid.New(), pid, dto.CreateReviewRequest{Rating: 3})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), resp.ID, uuid.New(), model.RoleUser)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Len(t, reviewRepo.reviews, 1)

	// A moderator may remove any review.
	assert.NoError(t, svc.Delete(context.Background(), resp.ID, uuid.New(), model.RoleAdmin))
}

func TestReviewService_Delete_NotFound(t *testing.T) {
	svc, _, _ := newReviewFixture()
	err := svc.Delete(context.Background(), uuid.New(), uuid.New(), model.RoleAdmin)
	assert.ErrorIs(t, err, ErrReviewNotFound)
}
