package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// AnalyticsCache holds a computed analytics payload until it expires
type AnalyticsCache struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	CacheKey  string          `gorm:"not null;index:idx_analytics_cache_key_branch" json:"cache_key"`
	BranchID  *uint           `gorm:"index:idx_analytics_cache_key_branch" json:"branch_id"`
	Data      json.RawMessage `gorm:"type:jsonb;not null" json:"data"`
	ExpiresAt time.Time       `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName specifies the table name for AnalyticsCache
func (AnalyticsCache) TableName() string {
	return "analytics_cache"
}

// PortfolioSummary aggregates the state of a loan book
type PortfolioSummary struct {
	BranchID           *uint            `json:"branch_id,omitempty"`
	From               *time.Time       `json:"from,omitempty"`
	To                 *time.Time       `json:"to,omitempty"`
	LoansByStatus      map[string]int64 `json:"loans_by_status"`
	ActiveLoans        int64            `json:"active_loans"`
	OutstandingBalance decimal.Decimal  `json:"outstanding_balance"`
	CollectedAmount    decimal.Decimal  `json:"collected_amount"`
	RepaymentCount     int64            `json:"repayment_count"`
	OverdueItems       int64            `json:"overdue_items"`
	OverdueAmount      decimal.Decimal  `json:"overdue_amount"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// BranchCollection is the amount collected by one branch in a period
type BranchCollection struct {
	BranchID   uint            `json:"branch_id"`
	BranchName string          `json:"branch_name"`
	Collected  decimal.Decimal `json:"collected"`
	Count      int64           `json:"count"`
}
