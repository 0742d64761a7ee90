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
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists")
)

type CategoryService struct {
	categoryRepo repository.CategoryRepository
}

func NewCategoryService(categoryRepo repository.CategoryRepository) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo}
}

func (s *CategoryService) Create(ctx context.Context, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error) {
	existing, err := s.categoryRepo.GetByName(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("check category: %w", err)
	}
	if existing != nil {
		return nil, ErrCategoryExists
	}

	category := &model.Category{Name: req.Name}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &dto.CategoryResponse{ID: category.ID, Name: category.Name}, nil
}

func (s *CategoryService) GetByID(ctx context.Context, id uuid.UUID) (*dto.CategoryResponse, error) {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}
	return &dto.CategoryResponse{ID: category.ID, Name: category.Name}, nil
}

func (s *CategoryService) List(ctx context.Context) ([]dto.CategoryResponse, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	resp := make([]dto.CategoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, dto.CategoryResponse{ID: c.ID, Name: c.Name})
	}
	return resp, nil
}

func (s *CategoryService) Update(ctx context.Context, id uuid.UUID, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error) {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}

	existing, err := s.categoryRepo.GetByName(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("check category: %w", err)
	}
	if existing != nil && existing.ID != id {
		return nil, ErrCategoryExists
	}

	category.Name = req.Name
	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	return &dto.CategoryResponse{ID: category.ID, Name: category.Name}, nil
}

// Delete nulls the category on its products rather than deleting them.
func (s *CategoryService) Delete(ctx context.Context, id uuid.UUID) error {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return ErrCategoryNotFound
	}
	if err := s.categoryRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
