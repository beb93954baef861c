package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RepaymentScheduleItem is one installment of a loan's repayment plan
type RepaymentScheduleItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	LoanID       uint            `gorm:"not null;index:idx_schedule_loan_due,priority:1" json:"loan_id"`
	Sequence     int             `gorm:"not null" json:"sequence"`
	DueDate      time.Time       `gorm:"type:date;not null;index:idx_schedule_loan_due,priority:2" json:"due_date"`
	PrincipalDue decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"principal_due"`
	InterestDue  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"interest_due"`
	TotalDue     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_due"`
	PaidAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"paid_amount"`
	Status       string          `gorm:"size:16;default:PENDING;not null;index" json:"status"`
	ClosedAt     *time.Time      `json:"closed_at"`
	DeletedAt    *time.Time      `gorm:"index" json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName specifies the table name for RepaymentScheduleItem
func (RepaymentScheduleItem) TableName() string {
	return "repayment_schedule_items"
}

// Schedule item status constants
const (
	ScheduleStatusPending = "PENDING"
	ScheduleStatusPartial = "PARTIAL"
	ScheduleStatusPaid    = "PAID"
	ScheduleStatusOverdue = "OVERDUE"
)

// AllocatableStatuses are the statuses an item may be in to receive money
var AllocatableStatuses = []string{
	ScheduleStatusPending,
	ScheduleStatusPartial,
	ScheduleStatusOverdue,
}

// IsDeleted returns true if the item has been soft-deleted with its loan
func (s *RepaymentScheduleItem) IsDeleted() bool {
	return s.DeletedAt != nil
}

// IsPaid returns true if the installment is fully covered
func (s *RepaymentScheduleItem) IsPaid() bool {
	return s.Status == ScheduleStatusPaid
}

// Outstanding returns totalDue - paidAmount
func (s *RepaymentScheduleItem) Outstanding() decimal.Decimal {
	return s.TotalDue.Sub(s.PaidAmount)
}

// IsPastDue returns true if the due date is before the given day
func (s *RepaymentScheduleItem) IsPastDue(asOf time.Time) bool {
	y, m, d := asOf.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, asOf.Location())
	return s.DueDate.Before(today)
}

// RepaymentScheduleItemResponse is the JSON response format for installments
type RepaymentScheduleItemResponse struct {
	ID           uint            `json:"id"`
	Sequence     int             `json:"sequence"`
	DueDate      time.Time       `json:"due_date"`
	PrincipalDue decimal.Decimal `json:"principal_due"`
	InterestDue  decimal.Decimal `json:"interest_due"`
	TotalDue     decimal.Decimal `json:"total_due"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	Status       string          `json:"status"`
	ClosedAt     *time.Time      `json:"closed_at"`
}

// ToResponse converts RepaymentScheduleItem to its response format
func (s *RepaymentScheduleItem) ToResponse() RepaymentScheduleItemResponse {
	return RepaymentScheduleItemResponse{
		ID:           s.ID,
		Sequence:     s.Sequence,
		DueDate:      s.DueDate,
		PrincipalDue: s.PrincipalDue,
		InterestDue:  s.InterestDue,
		TotalDue:     s.TotalDue,
		PaidAmount:   s.PaidAmount,
		Outstanding:  s.Outstanding(),
		Status:       s.Status,
		ClosedAt:     s.ClosedAt,
	}
}
