package repository

import (
	"context"
	"time"

	"github.com/sjperalta/lendcore-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepaymentRepository defines the interface for repayment data access
type RepaymentRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Repayment, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*models.Repayment, error)
	Create(ctx context.Context, repayment *models.Repayment) error
	CreateAllocations(ctx context.Context, allocations []models.RepaymentAllocation) error
	UpdateDetails(ctx context.Context, repayment *models.Repayment) error
	MarkDeleted(ctx context.Context, id uint, at time.Time) error
	ListByLoan(ctx context.Context, loanID uint, query *ListQuery) ([]models.Repayment, int64, error)
}

type repaymentRepository struct {
	db *gorm.DB
}

// NewRepaymentRepository creates a new repayment repository
func NewRepaymentRepository(db *gorm.DB) RepaymentRepository {
	return &repaymentRepository{db: db}
}

func (r *repaymentRepository) FindByID(ctx context.Context, id uint) (*models.Repayment, error) {
	var repayment models.Repayment
	err := r.db.WithContext(ctx).
		Joins("Loan").
		Joins("ReceivedBy").
		Preload("Allocations", func(db *gorm.DB) *gorm.DB {
			return db.Order("repayment_allocations.id ASC")
		}).
		Preload("Allocations.ScheduleItem").
		Where("repayments.deleted_at IS NULL").
		First(&repayment, "repayments.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &repayment, nil
}

// FindByIDForUpdate locks a non-deleted repayment and loads its allocations
func (r *repaymentRepository) FindByIDForUpdate(ctx context.Context, id uint) (*models.Repayment, error) {
	var repayment models.Repayment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("deleted_at IS NULL").
		First(&repayment, id).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Where("repayment_id = ?", repayment.ID).
		Order("id ASC").
		Find(&repayment.Allocations).Error
	if err != nil {
		return nil, err
	}
	return &repayment, nil
}

func (r *repaymentRepository) Create(ctx context.Context, repayment *models.Repayment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(repayment).Error
}

func (r *repaymentRepository) CreateAllocations(ctx context.Context, allocations []models.RepaymentAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&allocations).Error
}

// UpdateDetails writes the editable metadata of a live repayment. The
// amount is never written after creation.
func (r *repaymentRepository) UpdateDetails(ctx context.Context, repayment *models.Repayment) error {
	result := r.db.WithContext(ctx).
		Model(&models.Repayment{}).
		Where("id = ? AND deleted_at IS NULL", repayment.ID).
		Updates(map[string]interface{}{
			"method":     repayment.Method,
			"reference":  repayment.Reference,
			"notes":      repayment.Notes,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repaymentRepository) MarkDeleted(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Repayment{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at).Error
}

func (r *repaymentRepository) ListByLoan(ctx context.Context, loanID uint, query *ListQuery) ([]models.Repayment, int64, error) {
	var repayments []models.Repayment
	var total int64

	db := r.db.WithContext(ctx).
		Model(&models.Repayment{}).
		Where("repayments.loan_id = ? AND repayments.deleted_at IS NULL", loanID)

	if method := query.Filters["method"]; method != "" {
		db = db.Where("repayments.method = ?", method)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.
		Joins("ReceivedBy").
		Preload("Allocations").
		Preload("Allocations.ScheduleItem").
		Order("repayments.paid_at DESC, repayments.id DESC").
		Find(&repayments).Error
	return repayments, total, err
}
