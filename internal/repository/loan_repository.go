package repository

import (
	"context"
	"time"

	"github.com/sjperalta/lendcore-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoanRepository defines the interface for loan data access
type LoanRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Loan, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error)
	Create(ctx context.Context, loan *models.Loan) error
	Update(ctx context.Context, loan *models.Loan) error
	SoftDelete(ctx context.Context, id uint, at time.Time) error
	List(ctx context.Context, query *LoanQuery) ([]models.Loan, int64, error)
}

// LoanQuery extends ListQuery with loan-specific filters
type LoanQuery struct {
	*ListQuery
	BranchID  *uint
	OfficerID *uint
	Status    string
}

type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

// FindByID loads a non-deleted loan with its branch, officer and non-deleted
// schedule in due order
func (r *loanRepository) FindByID(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Joins("Branch").
		Joins("Officer").
		Preload("Schedule", func(db *gorm.DB) *gorm.DB {
			return db.Where("deleted_at IS NULL").Order("due_date ASC, sequence ASC")
		}).
		Where("loans.deleted_at IS NULL").
		First(&loan, "loans.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindByIDForUpdate locks the loan row for the rest of the transaction. The
// loan row is the lock for the whole loan + schedule aggregate. Soft-deleted
// loans are returned too; callers decide what a deleted loan means for them.
func (r *loanRepository) FindByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(loan).Error
}

func (r *loanRepository) Update(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(loan).Error
}

func (r *loanRepository) SoftDelete(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at).Error
}

func (r *loanRepository) List(ctx context.Context, query *LoanQuery) ([]models.Loan, int64, error) {
	var loans []models.Loan
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Loan{}).Where("loans.deleted_at IS NULL")

	if query.BranchID != nil {
		db = db.Where("loans.branch_id = ?", *query.BranchID)
	}
	if query.OfficerID != nil {
		db = db.Where("loans.officer_id = ?", *query.OfficerID)
	}
	if query.Status != "" {
		db = db.Where("loans.status = ?", query.Status)
	}
	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("loans.customer_name ILIKE ? OR loans.customer_phone ILIKE ?", search, search)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Sorting is restricted to known columns
	order := "loans.created_at DESC"
	switch query.SortBy {
	case "created_at", "principal", "status", "customer_name":
		order = "loans." + query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
	}
	db = db.Order(order)

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Joins("Branch").Joins("Officer").Find(&loans).Error
	return loans, total, err
}
