package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Loan represents a microfinance loan issued through a branch
type Loan struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	BranchID      uint            `gorm:"not null;index" json:"branch_id"`
	OfficerID     uint            `gorm:"not null;index" json:"officer_id"`
	CustomerName  string          `gorm:"not null" json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Principal     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"principal"`
	InterestRate  decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"interest_rate"` // flat, percent per year
	TermMonths    int             `gorm:"not null" json:"term_months"`
	Status        string          `gorm:"size:32;default:DRAFT;not null;index" json:"status"`
	ActivatedAt   *time.Time      `json:"activated_at"`
	ClosedAt      *time.Time      `json:"closed_at"`
	DeletedAt     *time.Time      `gorm:"index" json:"-"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Associations
	Branch   Branch                  `gorm:"foreignKey:BranchID" json:"branch,omitempty"`
	Officer  User                    `gorm:"foreignKey:OfficerID" json:"officer,omitempty"`
	Schedule []RepaymentScheduleItem `gorm:"foreignKey:LoanID" json:"schedule,omitempty"`
}

// TableName specifies the table name for Loan
func (Loan) TableName() string {
	return "loans"
}

// Loan status constants
const (
	LoanStatusDraft           = "DRAFT"
	LoanStatusPendingApproval = "PENDING_APPROVAL"
	LoanStatusApproved        = "APPROVED"
	LoanStatusActive          = "ACTIVE"
	LoanStatusCompleted       = "COMPLETED"
	LoanStatusDefaulted       = "DEFAULTED"
	LoanStatusWrittenOff      = "WRITTEN_OFF"
	LoanStatusCanceled        = "CANCELED"
)

// IsDeleted returns true if the loan has been soft-deleted
func (l *Loan) IsDeleted() bool {
	return l.DeletedAt != nil
}

// AcceptsRepayments returns true if payments may be recorded against the loan
func (l *Loan) AcceptsRepayments() bool {
	return l.Status == LoanStatusActive && !l.IsDeleted()
}

// LoanResponse is the JSON response format for loans
type LoanResponse struct {
	ID            uint                            `json:"id"`
	BranchID      uint                            `json:"branch_id"`
	BranchName    string                          `json:"branch_name,omitempty"`
	OfficerID     uint                            `json:"officer_id"`
	OfficerName   string                          `json:"officer_name,omitempty"`
	CustomerName  string                          `json:"customer_name"`
	CustomerPhone string                          `json:"customer_phone"`
	Principal     decimal.Decimal                 `json:"principal"`
	InterestRate  decimal.Decimal                 `json:"interest_rate"`
	TermMonths    int                             `json:"term_months"`
	Status        string                          `json:"status"`
	TotalDue      decimal.Decimal                 `json:"total_due"`
	TotalPaid     decimal.Decimal                 `json:"total_paid"`
	Outstanding   decimal.Decimal                 `json:"outstanding"`
	ActivatedAt   *time.Time                      `json:"activated_at"`
	ClosedAt      *time.Time                      `json:"closed_at"`
	CreatedAt     time.Time                       `json:"created_at"`
	Schedule      []RepaymentScheduleItemResponse `json:"schedule,omitempty"`
}

// ToResponse converts Loan to LoanResponse. Totals are computed over the
// loaded, non-deleted schedule items.
func (l *Loan) ToResponse() LoanResponse {
	resp := LoanResponse{
		ID:            l.ID,
		BranchID:      l.BranchID,
		OfficerID:     l.OfficerID,
		CustomerName:  l.CustomerName,
		CustomerPhone: l.CustomerPhone,
		Principal:     l.Principal,
		InterestRate:  l.InterestRate,
		TermMonths:    l.TermMonths,
		Status:        l.Status,
		TotalDue:      decimal.Zero,
		TotalPaid:     decimal.Zero,
		ActivatedAt:   l.ActivatedAt,
		ClosedAt:      l.ClosedAt,
		CreatedAt:     l.CreatedAt,
	}

	if l.Branch.ID != 0 {
		resp.BranchName = l.Branch.Name
	}
	if l.Officer.ID != 0 {
		resp.OfficerName = l.Officer.FullName
	}

	for i := range l.Schedule {
		item := &l.Schedule[i]
		if item.IsDeleted() {
			continue
		}
		resp.TotalDue = resp.TotalDue.Add(item.TotalDue)
		resp.TotalPaid = resp.TotalPaid.Add(item.PaidAmount)
		resp.Schedule = append(resp.Schedule, item.ToResponse())
	}
	resp.Outstanding = resp.TotalDue.Sub(resp.TotalPaid)

	return resp
}
