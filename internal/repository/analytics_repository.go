package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/lendcore-api/internal/models"
	"gorm.io/gorm"
)

// PortfolioFilter narrows portfolio aggregates to a branch and a collection
// period. Nil fields are not applied.
type PortfolioFilter struct {
	BranchID *uint
	From     *time.Time
	To       *time.Time
}

type AnalyticsRepository interface {
	GetCache(ctx context.Context, key string, branchID *uint) (*models.AnalyticsCache, error)
	SetCache(ctx context.Context, key string, branchID *uint, data interface{}, ttl time.Duration) error
	CleanExpiredCache(ctx context.Context) (int64, error)

	GetLoanCountsByStatus(ctx context.Context, branchID *uint) (map[string]int64, error)
	GetOutstandingBalance(ctx context.Context, branchID *uint) (decimal.Decimal, error)
	GetCollected(ctx context.Context, filter PortfolioFilter) (decimal.Decimal, int64, error)
	GetOverdue(ctx context.Context, branchID *uint) (int64, decimal.Decimal, error)
	GetCollectionsByBranch(ctx context.Context, from, to *time.Time) ([]models.BranchCollection, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) cacheScope(ctx context.Context, key string, branchID *uint) *gorm.DB {
	db := r.db.WithContext(ctx).Where("cache_key = ?", key)
	if branchID != nil {
		return db.Where("branch_id = ?", *branchID)
	}
	return db.Where("branch_id IS NULL")
}

func (r *analyticsRepository) GetCache(ctx context.Context, key string, branchID *uint) (*models.AnalyticsCache, error) {
	var cache models.AnalyticsCache
	err := r.cacheScope(ctx, key, branchID).
		Where("expires_at > ?", time.Now()).
		First(&cache).Error
	if err != nil {
		return nil, err
	}
	return &cache, nil
}

func (r *analyticsRepository) SetCache(ctx context.Context, key string, branchID *uint, data interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(ttl)

	var existing models.AnalyticsCache
	err = r.cacheScope(ctx, key, branchID).First(&existing).Error
	if err == nil {
		return r.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
			"data":       jsonData,
			"expires_at": expiresAt,
		}).Error
	}

	return r.db.WithContext(ctx).Create(&models.AnalyticsCache{
		CacheKey:  key,
		BranchID:  branchID,
		Data:      jsonData,
		ExpiresAt: expiresAt,
	}).Error
}

func (r *analyticsRepository) CleanExpiredCache(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&models.AnalyticsCache{})
	return result.RowsAffected, result.Error
}

func (r *analyticsRepository) GetLoanCountsByStatus(ctx context.Context, branchID *uint) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}

	query := r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("status, COUNT(*) AS count").
		Where("deleted_at IS NULL")
	if branchID != nil {
		query = query.Where("branch_id = ?", *branchID)
	}

	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// GetOutstandingBalance sums what is still owed on the schedules of active loans
func (r *analyticsRepository) GetOutstandingBalance(ctx context.Context, branchID *uint) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	query := r.db.WithContext(ctx).Table("repayment_schedule_items AS items").
		Select("COALESCE(SUM(items.total_due - items.paid_amount), 0) AS total").
		Joins("JOIN loans ON loans.id = items.loan_id").
		Where("items.deleted_at IS NULL AND loans.deleted_at IS NULL").
		Where("loans.status = ?", models.LoanStatusActive)
	if branchID != nil {
		query = query.Where("loans.branch_id = ?", *branchID)
	}

	err := query.Scan(&row).Error
	return row.Total, err
}

func (r *analyticsRepository) GetCollected(ctx context.Context, filter PortfolioFilter) (decimal.Decimal, int64, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}

	query := r.db.WithContext(ctx).Table("repayments").
		Select("COALESCE(SUM(repayments.amount), 0) AS total, COUNT(*) AS count").
		Where("repayments.deleted_at IS NULL")
	if filter.BranchID != nil {
		query = query.Joins("JOIN loans ON loans.id = repayments.loan_id").
			Where("loans.branch_id = ?", *filter.BranchID)
	}
	if filter.From != nil {
		query = query.Where("repayments.paid_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("repayments.paid_at < ?", *filter.To)
	}

	err := query.Scan(&row).Error
	return row.Total, row.Count, err
}

func (r *analyticsRepository) GetOverdue(ctx context.Context, branchID *uint) (int64, decimal.Decimal, error) {
	var row struct {
		Count  int64
		Amount decimal.Decimal
	}

	query := r.db.WithContext(ctx).Table("repayment_schedule_items AS items").
		Select("COUNT(*) AS count, COALESCE(SUM(items.total_due - items.paid_amount), 0) AS amount").
		Joins("JOIN loans ON loans.id = items.loan_id").
		Where("items.deleted_at IS NULL AND loans.deleted_at IS NULL").
		Where("items.status = ?", models.ScheduleStatusOverdue)
	if branchID != nil {
		query = query.Where("loans.branch_id = ?", *branchID)
	}

	err := query.Scan(&row).Error
	return row.Count, row.Amount, err
}

func (r *analyticsRepository) GetCollectionsByBranch(ctx context.Context, from, to *time.Time) ([]models.BranchCollection, error) {
	var rows []models.BranchCollection

	query := r.db.WithContext(ctx).Table("repayments").
		Select("branches.id AS branch_id, branches.name AS branch_name, " +
			"COALESCE(SUM(repayments.amount), 0) AS collected, COUNT(repayments.id) AS count").
		Joins("JOIN loans ON loans.id = repayments.loan_id").
		Joins("JOIN branches ON branches.id = loans.branch_id").
		Where("repayments.deleted_at IS NULL")
	if from != nil {
		query = query.Where("repayments.paid_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("repayments.paid_at < ?", *to)
	}

	err := query.Group("branches.id, branches.name").
		Order("collected DESC").
		Scan(&rows).Error
	return rows, err
}
