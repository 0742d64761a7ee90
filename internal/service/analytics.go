package service

import (
	"context"
	"fmt"

	"github.com/arlev/storefront-api/internal/dto"
	"github.com/arlev/storefront-api/internal/repository"
)

const topProductsLimit = 10

type AnalyticsService struct {
	orderRepo repository.OrderRepository
}

func NewAnalyticsService(orderRepo repository.OrderRepository) *AnalyticsService {
	return &AnalyticsService{orderRepo: orderRepo}
}

func (s *AnalyticsService) SalesSummary(ctx context.Context) (*dto.SalesSummaryResponse, error) {
	summary, err := s.orderRepo.SalesSummary(ctx, topProductsLimit)
	if err != nil {
		return nil, fmt.Errorf("sales summary: %w", err)
	}

	resp := &dto.SalesSummaryResponse{
		TotalRevenue: summary.TotalRevenue,
		OrderCount:   summary.OrderCount,
	}
	for _, ps := range summary.TopProducts {
		resp.TopProducts = append(resp.TopProducts, dto.ProductSalesResponse{
			ProductID: ps.ProductID,
			Name:      ps.Name,
			UnitsSold: ps.UnitsSold,
		})
	}
	return resp, nil
}
