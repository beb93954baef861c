package handlers

import (
	"context"

	"github.com/sjperalta/lendcore-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	User      *UserHandler
	Branch    *BranchHandler
	Loan      *LoanHandler
	Repayment *RepaymentHandler
	Audit     *AuditHandler
	Analytics *AnalyticsHandler
	Job       *JobHandler
}

// NewHandlers creates all handler instances. ping reports database health.
func NewHandlers(svcs *services.Services, ping func(ctx context.Context) error) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(ping),
		Auth:      NewAuthHandler(svcs.Auth),
		User:      NewUserHandler(svcs.User),
		Branch:    NewBranchHandler(svcs.User),
		Loan:      NewLoanHandler(svcs.Loan),
		Repayment: NewRepaymentHandler(svcs.Repayment),
		Audit:     NewAuditHandler(svcs.Audit),
		Analytics: NewAnalyticsHandler(svcs.Analytics, svcs.Export),
		Job:       NewJobHandler(svcs.Job),
	}
}
