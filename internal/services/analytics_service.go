package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/sjperalta/lendcore-api/pkg/logger"
)

const portfolioCacheTTL = 5 * time.Minute

type AnalyticsService struct {
	analyticsRepo repository.AnalyticsRepository
}

func NewAnalyticsService(analyticsRepo repository.AnalyticsRepository) *AnalyticsService {
	return &AnalyticsService{analyticsRepo: analyticsRepo}
}

// Portfolio returns the loan book summary for the actor's branch scope.
// Results are cached briefly per branch and period.
func (s *AnalyticsService) Portfolio(ctx context.Context, actor Actor, filter repository.PortfolioFilter) (*models.PortfolioSummary, error) {
	filter.BranchID = actor.ScopeBranch(filter.BranchID)
	cacheKey := portfolioCacheKey(filter)

	cached, err := s.analyticsRepo.GetCache(ctx, cacheKey, filter.BranchID)
	if err == nil && cached != nil {
		var summary models.PortfolioSummary
		if err := json.Unmarshal(cached.Data, &summary); err == nil {
			return &summary, nil
		}
	}

	summary, err := s.computePortfolio(ctx, filter)
	if err != nil {
		return nil, err
	}

	if err := s.analyticsRepo.SetCache(ctx, cacheKey, filter.BranchID, summary, portfolioCacheTTL); err != nil {
		logger.Warn("Failed to cache portfolio summary", "error", err)
	}
	return summary, nil
}

func portfolioCacheKey(filter repository.PortfolioFilter) string {
	key := "portfolio"
	if filter.From != nil {
		key += "_from_" + filter.From.UTC().Format("20060102")
	}
	if filter.To != nil {
		key += "_to_" + filter.To.UTC().Format("20060102")
	}
	return key
}

func (s *AnalyticsService) computePortfolio(ctx context.Context, filter repository.PortfolioFilter) (*models.PortfolioSummary, error) {
	counts, err := s.analyticsRepo.GetLoanCountsByStatus(ctx, filter.BranchID)
	if err != nil {
		return nil, fmt.Errorf("loan counts: %w", err)
	}

	outstanding, err := s.analyticsRepo.GetOutstandingBalance(ctx, filter.BranchID)
	if err != nil {
		return nil, fmt.Errorf("outstanding balance: %w", err)
	}

	collected, repayments, err := s.analyticsRepo.GetCollected(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("collected amount: %w", err)
	}

	overdueItems, overdueAmount, err := s.analyticsRepo.GetOverdue(ctx, filter.BranchID)
	if err != nil {
		return nil, fmt.Errorf("overdue installments: %w", err)
	}

	return &models.PortfolioSummary{
		BranchID:           filter.BranchID,
		From:               filter.From,
		To:                 filter.To,
		LoansByStatus:      counts,
		ActiveLoans:        counts[models.LoanStatusActive],
		OutstandingBalance: outstanding,
		CollectedAmount:    collected,
		RepaymentCount:     repayments,
		OverdueItems:       overdueItems,
		OverdueAmount:      overdueAmount,
		GeneratedAt:        time.Now().UTC(),
	}, nil
}

// CollectionsByBranch ranks branches by the amount collected in the period
func (s *AnalyticsService) CollectionsByBranch(ctx context.Context, from, to *time.Time) ([]models.BranchCollection, error) {
	return s.analyticsRepo.GetCollectionsByBranch(ctx, from, to)
}

// CleanExpiredCache drops stale cached analytics
func (s *AnalyticsService) CleanExpiredCache(ctx context.Context) error {
	removed, err := s.analyticsRepo.CleanExpiredCache(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Debug("Expired analytics cache removed", "count", removed)
	}
	return nil
}
