package repository

import (
	"context"
	"time"

	"github.com/sjperalta/lendcore-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScheduleRepository defines the interface for repayment schedule data access
type ScheduleRepository interface {
	FindByLoan(ctx context.Context, loanID uint) ([]models.RepaymentScheduleItem, error)
	FindOutstandingForUpdate(ctx context.Context, loanID uint) ([]*models.RepaymentScheduleItem, error)
	FindByIDsForUpdate(ctx context.Context, ids []uint) ([]*models.RepaymentScheduleItem, error)
	CountUnpaid(ctx context.Context, loanID uint) (int64, error)
	CreateBatch(ctx context.Context, items []models.RepaymentScheduleItem) error
	UpdateBalance(ctx context.Context, item *models.RepaymentScheduleItem) error
	SoftDeleteByLoan(ctx context.Context, loanID uint, at time.Time) error
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) FindByLoan(ctx context.Context, loanID uint) ([]models.RepaymentScheduleItem, error) {
	var items []models.RepaymentScheduleItem
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND deleted_at IS NULL", loanID).
		Order("due_date ASC, sequence ASC").
		Find(&items).Error
	return items, err
}

// FindOutstandingForUpdate locks and returns the installments that can still
// receive money, oldest obligation first
func (r *scheduleRepository) FindOutstandingForUpdate(ctx context.Context, loanID uint) ([]*models.RepaymentScheduleItem, error) {
	var items []*models.RepaymentScheduleItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("loan_id = ? AND deleted_at IS NULL AND status IN ?", loanID, models.AllocatableStatuses).
		Order("due_date ASC, sequence ASC").
		Find(&items).Error
	return items, err
}

// FindByIDsForUpdate locks the given installments regardless of their
// deleted state. Allocation history may point at items of a deleted loan.
func (r *scheduleRepository) FindByIDsForUpdate(ctx context.Context, ids []uint) ([]*models.RepaymentScheduleItem, error) {
	var items []*models.RepaymentScheduleItem
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *scheduleRepository) CountUnpaid(ctx context.Context, loanID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RepaymentScheduleItem{}).
		Where("loan_id = ? AND deleted_at IS NULL AND status <> ?", loanID, models.ScheduleStatusPaid).
		Count(&count).Error
	return count, err
}

func (r *scheduleRepository) CreateBatch(ctx context.Context, items []models.RepaymentScheduleItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// UpdateBalance persists the paid amount, status and close timestamp
func (r *scheduleRepository) UpdateBalance(ctx context.Context, item *models.RepaymentScheduleItem) error {
	return r.db.WithContext(ctx).
		Model(item).
		Updates(map[string]interface{}{
			"paid_amount": item.PaidAmount,
			"status":      item.Status,
			"closed_at":   item.ClosedAt,
		}).Error
}

func (r *scheduleRepository) SoftDeleteByLoan(ctx context.Context, loanID uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.RepaymentScheduleItem{}).
		Where("loan_id = ? AND deleted_at IS NULL", loanID).
		Update("deleted_at", at).Error
}

// MarkOverdue flags unpaid installments of active loans whose due date is
// before asOf
func (r *scheduleRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	activeLoans := r.db.Model(&models.Loan{}).
		Select("id").
		Where("status = ? AND deleted_at IS NULL", models.LoanStatusActive)

	result := r.db.WithContext(ctx).
		Model(&models.RepaymentScheduleItem{}).
		Where("deleted_at IS NULL AND status IN ? AND due_date < ? AND loan_id IN (?)",
			[]string{models.ScheduleStatusPending, models.ScheduleStatusPartial}, asOf, activeLoans).
		Update("status", models.ScheduleStatusOverdue)

	return result.RowsAffected, result.Error
}
