package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Repayment is an immutable record of money received against a loan
type Repayment struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	LoanID       uint            `gorm:"not null;index" json:"loan_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	ReceivedByID uint            `gorm:"not null;index" json:"received_by_id"`
	Method       string          `gorm:"size:16;not null" json:"method"`
	Reference    *string         `gorm:"size:128" json:"reference"`
	Notes        *string         `gorm:"type:text" json:"notes"`
	PaidAt       time.Time       `gorm:"not null;index" json:"paid_at"`
	DeletedAt    *time.Time      `gorm:"index" json:"-"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Associations
	Loan        Loan                  `gorm:"foreignKey:LoanID" json:"-"`
	ReceivedBy  User                  `gorm:"foreignKey:ReceivedByID" json:"-"`
	Allocations []RepaymentAllocation `gorm:"foreignKey:RepaymentID" json:"allocations,omitempty"`
}

// TableName specifies the table name for Repayment
func (Repayment) TableName() string {
	return "repayments"
}

// Repayment method constants
const (
	RepaymentMethodCash     = "CASH"
	RepaymentMethodTransfer = "TRANSFER"
	RepaymentMethodPOS      = "POS"
	RepaymentMethodMobile   = "MOBILE"
	RepaymentMethodUSSD     = "USSD"
	RepaymentMethodOther    = "OTHER"
)

// IsValidRepaymentMethod reports whether m is a supported payment channel
func IsValidRepaymentMethod(m string) bool {
	switch m {
	case RepaymentMethodCash, RepaymentMethodTransfer, RepaymentMethodPOS,
		RepaymentMethodMobile, RepaymentMethodUSSD, RepaymentMethodOther:
		return true
	}
	return false
}

// IsDeleted returns true if the repayment was reversed
func (r *Repayment) IsDeleted() bool {
	return r.DeletedAt != nil
}

// AllocatedAmount returns the portion of the payment applied to installments
func (r *Repayment) AllocatedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// RepaymentAllocation links a repayment to the installment it paid
type RepaymentAllocation struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	RepaymentID    uint            `gorm:"not null;index" json:"repayment_id"`
	ScheduleItemID uint            `gorm:"not null;index" json:"schedule_item_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	CreatedAt      time.Time       `json:"created_at"`

	ScheduleItem RepaymentScheduleItem `gorm:"foreignKey:ScheduleItemID" json:"-"`
}

// TableName specifies the table name for RepaymentAllocation
func (RepaymentAllocation) TableName() string {
	return "repayment_allocations"
}

// RepaymentResponse is the JSON response format for repayments
type RepaymentResponse struct {
	ID             uint                          `json:"id"`
	LoanID         uint                          `json:"loan_id"`
	Amount         decimal.Decimal               `json:"amount"`
	AllocatedTotal decimal.Decimal               `json:"allocated_total"`
	Unallocated    decimal.Decimal               `json:"unallocated"`
	Method         string                        `json:"method"`
	Reference      *string                       `json:"reference"`
	Notes          *string                       `json:"notes"`
	PaidAt         time.Time                     `json:"paid_at"`
	ReceivedByID   uint                          `json:"received_by_id"`
	ReceivedBy     string                        `json:"received_by,omitempty"`
	CreatedAt      time.Time                     `json:"created_at"`
	Allocations    []RepaymentAllocationResponse `json:"allocations"`
}

// RepaymentAllocationResponse is the JSON response format for allocations
type RepaymentAllocationResponse struct {
	ScheduleItemID uint            `json:"schedule_item_id"`
	Sequence       int             `json:"sequence,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
}

// ToResponse converts Repayment to RepaymentResponse
func (r *Repayment) ToResponse() RepaymentResponse {
	allocated := r.AllocatedAmount()
	resp := RepaymentResponse{
		ID:             r.ID,
		LoanID:         r.LoanID,
		Amount:         r.Amount,
		AllocatedTotal: allocated,
		Unallocated:    r.Amount.Sub(allocated),
		Method:         r.Method,
		Reference:      r.Reference,
		Notes:          r.Notes,
		PaidAt:         r.PaidAt,
		ReceivedByID:   r.ReceivedByID,
		CreatedAt:      r.CreatedAt,
		Allocations:    make([]RepaymentAllocationResponse, 0, len(r.Allocations)),
	}

	if r.ReceivedBy.ID != 0 {
		resp.ReceivedBy = r.ReceivedBy.FullName
	}

	for _, a := range r.Allocations {
		resp.Allocations = append(resp.Allocations, RepaymentAllocationResponse{
			ScheduleItemID: a.ScheduleItemID,
			Sequence:       a.ScheduleItem.Sequence,
			Amount:         a.Amount,
		})
	}

	return resp
}
